package types

import "context"

// ctxKey 未导出，避免与其他包的 context 键冲突
type ctxKey uint8

const (
	traceIDKey ctxKey = iota
	requestIDKey
	userIDKey
)

func withString(ctx context.Context, key ctxKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

// stringValue 空串视为未设置
func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithTraceID stores the OpenTelemetry trace ID of the current request.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

func TraceID(ctx context.Context) (string, bool) { return stringValue(ctx, traceIDKey) }

// WithRequestID stores the X-Request-ID echoed in responses and logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) (string, bool) { return stringValue(ctx, requestIDKey) }

// WithUserID stores the authenticated caller. It keys the per-user
// concurrency limit.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

func UserID(ctx context.Context) (string, bool) { return stringValue(ctx, userIDKey) }
