package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/dispatcher"
)

// statusFor maps lifecycle errors onto HTTP status codes. Payload errors are
// checked before transition errors so a malformed report is a 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, audit.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, audit.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, audit.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, audit.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, audit.ErrQuotaExhausted):
		return http.StatusPaymentRequired
	case errors.Is(err, audit.ErrNoActiveSubscription):
		return http.StatusForbidden
	case errors.Is(err, audit.ErrUnknownReport):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, audit.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and
// their detail is withheld from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		s.writeError(w, status, http.StatusText(status))
		return
	}
	s.writeError(w, status, err.Error())
}
