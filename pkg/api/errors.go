package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coretask-core/coretask/pkg/coreerr"
)

// mapCoreError maps a coreerr.Error (or any other error) to an HTTP status
// code and a user-facing message, using the same UserMessage rendering the
// router applies before showing text to a user (spec §7).
func mapCoreError(err error) (int, string) {
	var e *coreerr.Error
	if !errors.As(err, &e) {
		slog.Error("unexpected error", "error", err)
		return http.StatusInternalServerError, "internal server error"
	}

	msg := coreerr.UserMessage(err)
	switch e.Kind {
	case coreerr.KindParse, coreerr.KindValidation:
		return http.StatusBadRequest, msg
	case coreerr.KindNotFound:
		return http.StatusNotFound, msg
	case coreerr.KindConflict:
		return http.StatusConflict, msg
	case coreerr.KindTimeout:
		return http.StatusGatewayTimeout, msg
	case coreerr.KindTransport:
		return http.StatusBadGateway, msg
	case coreerr.KindCancelled:
		return 499, "request cancelled"
	default:
		slog.Error("unexpected error kind", "kind", e.Kind, "error", err)
		return http.StatusInternalServerError, "internal server error"
	}
}

// mapAcquireError maps a pkg/session.Manager.Acquire error: the caller's
// context expiring, the caller cancelling, or the manager shutting down.
func mapAcquireError(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out waiting for a free session slot"
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled"
	default:
		return http.StatusServiceUnavailable, "service is shutting down"
	}
}
