package api

import (
	"errors"
	"net/http"

	"aether-vault/internal/domain"
)

const (
	msgInternal    = "An unexpected error occurred"
	msgUpstream    = "Upstream service unavailable"
	msgNotFound    = "Vault not found"
	msgConflict    = "Vault was updated concurrently, please retry"
	msgUnavailable = "Service not configured"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return http.StatusBadRequest, ve.Message
		}
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrAuthorization):
		return http.StatusForbidden, "Wallet address mismatch"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		var ie *domain.InsufficientBalanceError
		if errors.As(err, &ie) {
			return http.StatusConflict, ie.Error()
		}
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict, msgConflict
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, msgUpstream
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	ev := s.logger.Info()
	if status >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSONStatus(w, status, errorBody{Error: msg})
}

func writeUnavailable(w http.ResponseWriter) {
	writeJSONStatus(w, http.StatusServiceUnavailable, errorBody{Error: msgUnavailable})
}
