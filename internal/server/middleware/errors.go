package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/jobforge/huntd/internal/errors"
)

// ErrorResponse is the envelope panics are rendered into; it is the same
// shape the handlers use for ordinary errors.
type ErrorResponse = apperrors.HTTPErrorResponse

var recoveryLog = zap.NewNop()

// SetLogger installs the logger used for recovered panics.
func SetLogger(log *zap.Logger) {
	if log != nil {
		recoveryLog = log
	}
}

// Recovery converts handler panics into a JSON 500 so one broken request
// cannot take down the daemon.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(r.Context())
				recoveryLog.Error("Recovered from handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID))

				writeErrorResponse(w, http.StatusInternalServerError, apperrors.ErrorDetail{
					Code:      "INTERNAL_ERROR",
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: requestID,
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is an alias for Recovery kept for middleware chains that
// name the concern rather than the mechanism.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, status int, detail apperrors.ErrorDetail) {
	apperrors.WriteErrorDetail(w, status, detail)
}
