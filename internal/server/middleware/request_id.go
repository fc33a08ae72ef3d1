package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/jobforge/huntd/internal/errors"
)

// RequestID attaches a request id to the context, honoring an inbound
// X-Request-ID header and generating one otherwise. The id is echoed back
// on the response and stamped into every error envelope.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		ctx := apperrors.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id from the context, or "".
func GetRequestID(ctx context.Context) string {
	return apperrors.RequestIDFromContext(ctx)
}
