package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a rejected selection as its reason only; other errors
// keep their wrapped context.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	var selErr *domain.SelectionError
	if errors.As(err, &selErr) {
		message = domain.SelectionReason(err)
	}
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}
