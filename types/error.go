package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request / transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Transformation error codes
const (
	// ErrUnknownStyle 风格目录中不存在该 ID
	ErrUnknownStyle ErrorCode = "UNKNOWN_STYLE"
	// ErrInvalidStyle 转换请求携带了未注册的风格 ID
	ErrInvalidStyle ErrorCode = "INVALID_STYLE"
	// ErrNotConfigured 后端缺少凭证
	ErrNotConfigured ErrorCode = "NOT_CONFIGURED"
	// ErrProviderError 后端返回非成功状态或应用层错误
	ErrProviderError ErrorCode = "PROVIDER_ERROR"
	// ErrEmptyOutput 后端成功响应但没有可用图像
	ErrEmptyOutput ErrorCode = "EMPTY_OUTPUT"
	// ErrConcurrencyLimit 用户并发转换数超过上限
	ErrConcurrencyLimit ErrorCode = "CONCURRENCY_LIMIT"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError unwraps err until a *Error is found.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries one of the given codes.
func IsErrorCode(err error, codes ...ErrorCode) bool {
	code := GetErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// NewInvalidRequestError 构造 400 类请求错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(400)
}

// NewNotConfiguredError 构造缺少凭证错误（不可重试）
func NewNotConfiguredError(provider, message string) *Error {
	return NewError(ErrNotConfigured, message).WithProvider(provider)
}

// NewProviderError 构造后端错误，status 为 0 表示没有 HTTP 状态
func NewProviderError(provider, message string, status int) *Error {
	return NewError(ErrProviderError, message).
		WithProvider(provider).
		WithHTTPStatus(status).
		WithRetryable(true)
}
