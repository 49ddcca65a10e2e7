package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/types"
)

// DefaultMaxBodyBytes 默认请求体上限
const DefaultMaxBodyBytes int64 = 1 << 20

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response is the envelope for every JSON reply.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo is the client-facing part of a types.Error.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 状态码已写出，编码错误只能丢弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess wraps data in a successful envelope with status 200.
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError writes err as a failed envelope. The status comes from the
// error code only: a backend error carries the upstream status, which is
// never passed through to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := statusFor(err.Code)
	if logger != nil {
		logAPIError(logger, r, err, status)
	}
	WriteJSON(w, status, Response{
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Provider:  err.Provider,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

func logAPIError(logger *zap.Logger, r *http.Request, err *types.Error, status int) {
	fields := []zap.Field{
		zap.String("code", string(err.Code)),
		zap.String("message", err.Message),
		zap.Int("status", status),
		zap.String("request_id", requestID(r)),
	}
	if err.Provider != "" {
		fields = append(fields, zap.String("provider", err.Provider), zap.Bool("retryable", err.Retryable))
	}
	if err.Cause != nil {
		fields = append(fields, zap.Error(err.Cause))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
		return
	}
	logger.Warn("request rejected", fields...)
}

// WriteAnyError writes err, treating anything that is not a *types.Error as
// an internal error whose text stays out of the response.
func WriteAnyError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	e, ok := types.AsError(err)
	if !ok {
		e = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	WriteError(w, r, e, logger)
}

// WriteErrorMessage writes a bare code and message.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message), logger)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id, ok := types.RequestID(r.Context()); ok {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// =============================================================================
// 🔄 错误码 → HTTP 状态码
// =============================================================================

// codeStatus 未列出的错误码按 500 处理
var codeStatus = map[types.ErrorCode]int{
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrInvalidStyle:       http.StatusBadRequest,
	types.ErrUnknownStyle:       http.StatusNotFound,
	types.ErrUnauthorized:       http.StatusUnauthorized,
	types.ErrForbidden:          http.StatusForbidden,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrConcurrencyLimit:   http.StatusTooManyRequests,
	types.ErrTimeout:            http.StatusGatewayTimeout,
	types.ErrNotConfigured:      http.StatusServiceUnavailable,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrProviderError:      http.StatusBadGateway,
	types.ErrEmptyOutput:        http.StatusBadGateway,
	types.ErrUpstreamError:      http.StatusBadGateway,
}

func statusFor(code types.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// =============================================================================
// 🛡️ 请求解码
// =============================================================================

// DecodeJSONBody decodes a JSON body of at most DefaultMaxBodyBytes.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	return DecodeJSONBodyLimit(w, r, dst, DefaultMaxBodyBytes, logger)
}

// DecodeJSONBodyLimit decodes exactly one JSON value of at most limit bytes
// into dst, rejecting unknown fields. On failure it has already written a
// 400 response and returns the *types.Error it wrote.
func DecodeJSONBodyLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64, logger *zap.Logger) error {
	fail := func(msg string, cause error) error {
		e := types.NewInvalidRequestError(msg)
		if cause != nil {
			e = e.WithCause(cause)
		}
		WriteError(w, r, e, logger)
		return e
	}

	if r.Body == nil || r.Body == http.NoBody {
		return fail("request body is empty", nil)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fail("request body too large", err)
		case errors.Is(err, io.EOF):
			return fail("request body is empty", err)
		}
		return fail("invalid JSON body", err)
	}
	if dec.More() {
		return fail("request body must contain a single JSON object", nil)
	}
	return nil
}

// ValidateContentType requires an application/json body and writes 400
// otherwise.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		WriteError(w, r, types.NewInvalidRequestError("Content-Type must be application/json"), logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器
// =============================================================================

// ResponseWriter records the status code and body size for the logging,
// metrics and tracing middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter wraps w. An already wrapped writer is returned as is so
// that stacked middleware share one recorder.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode = code
	rw.Written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层连接
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
