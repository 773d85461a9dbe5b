package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/aretw0/keystone/pkg/session"
)

const maxBodyBytes = 1 << 20

const (
	msgInternal      = "Something went wrong. Please try again later."
	msgNotConfigured = "The service is not configured to accept submissions."
	msgUnavailable   = "We could not save your answers right now. Please try again."
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSuccess writes {"success": true} merged with fields.
func writeSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	writeJSON(w, status, body)
}

// writeError maps err onto a status code and a client-safe envelope.
// Wrapped error text is only logged, never sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"kind", domain.KindOf(err),
			"error", err,
		)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, ErrorBody) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusNotFound, ErrorBody{Error: "session not found"}
	case errors.Is(err, domain.ErrSubmissionInFlight),
		errors.Is(err, domain.ErrAlreadySubmitted),
		errors.Is(err, domain.ErrNotAtResults):
		return http.StatusConflict, ErrorBody{Error: err.Error()}
	case errors.Is(err, session.ErrCapacity):
		return http.StatusServiceUnavailable, ErrorBody{Error: err.Error()}
	case errors.Is(err, ports.ErrUnsupported):
		return http.StatusNotImplemented, ErrorBody{Error: "the configured response store cannot list keys"}
	}

	var agg *domain.AggregateError
	if errors.As(err, &agg) {
		return http.StatusBadRequest, ErrorBody{Error: "validation failed", Details: agg.Fields()}
	}

	var tagged *domain.Error
	if !errors.As(err, &tagged) {
		return http.StatusInternalServerError, ErrorBody{Error: msgInternal}
	}
	switch tagged.Kind {
	case domain.KindValidation:
		msg := tagged.Message
		if msg == "" {
			msg = "invalid request"
		}
		return http.StatusBadRequest, ErrorBody{Error: msg}
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable, ErrorBody{Error: msgNotConfigured}
	case domain.KindTransientWrite:
		return http.StatusServiceUnavailable, ErrorBody{Error: msgUnavailable, Details: map[string]bool{"retryable": true}}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: msgInternal}
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewError(domain.KindValidation, "decode body", "request body is required", err)
		}
		return domain.NewError(domain.KindValidation, "decode body", "invalid request body", err)
	}
	return nil
}

// required reports missing string fields as one validation error.
func required(fields map[string]string) error {
	var errs []error
	for name, v := range fields {
		if v == "" {
			errs = append(errs, &domain.ValidationError{Key: name, Reason: "is required"})
		}
	}
	if len(errs) > 0 {
		return &domain.AggregateError{Errors: errs}
	}
	return nil
}
