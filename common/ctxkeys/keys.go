// common/ctxkeys/keys.go
package ctxkeys

type contextKey string

// Ключи контекста, общие для логгера и HTTP-мидлварей.
const (
	TraceIDKey   contextKey = "trace_id"
	RequestIDKey contextKey = "request_id"
	SessionIDKey contextKey = "session_id"
)
