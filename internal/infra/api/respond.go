package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/infra/logging"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOutOfInventory),
		errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrReservationMismatch),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsTransient(err), errors.Is(err, domain.ErrInvalidExecContext):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	switch code {
	case http.StatusServiceUnavailable:
		body = errorBody{Error: "temporarily unavailable", Retryable: true}
	case http.StatusInternalServerError:
		body = errorBody{Error: "internal error"}
	}
	if code >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		logLevel(l, code).Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, body)
}

func logLevel(l *zerolog.Logger, code int) *zerolog.Event {
	if code == http.StatusServiceUnavailable {
		return l.Warn()
	}
	return l.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}
