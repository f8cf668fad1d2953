// common/middleware/requestid.go
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Muritor08/TB-WSS/common/logger"
)

// RequestIDHeader — заголовок, в котором гуляет идентификатор запроса.
const RequestIDHeader = "X-Request-ID"

func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := logger.ContextWithRequestID(r.Context(), reqID)
			w.Header().Set(RequestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
