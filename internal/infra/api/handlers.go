package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/infra/logging"
	"esim-fulfillment/internal/infra/redis"

	"github.com/go-chi/chi/v5"
)

const maxIdempotencyKeyLen = 128

func callerID(r *http.Request) int64 {
	c, ok := claimsFrom(r.Context())
	if !ok {
		return 0
	}
	id, _ := c.UserID()
	return id
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return id, nil
}

func idempotencyKey(r *http.Request) (string, error) {
	k := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(k) > maxIdempotencyKeyLen {
		return "", domain.ErrInvalidArgument
	}
	return k, nil
}

// allow applies the per-user limit. Limiter outages fail open.
func (s *Server) allow(r *http.Request, userID int64, action string) error {
	if s.limiter == nil || s.opts.RateLimitPerMinute <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(r.Context(), redis.UserActionKey(userID, action), s.opts.RateLimitPerMinute, time.Minute)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.PlanID <= 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.allow(r, uid, "order"); err != nil {
		s.writeError(w, r, err)
		return
	}

	o, err := s.orderUC.CreateOrder(r.Context(), uid, req.PlanID, req.Currency, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(o))
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderUC.ListForUser(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orderUC.GetForUser(r.Context(), callerID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (s *Server) refundOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orderUC.Refund(logging.WithOrderID(r.Context(), id), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OrderID <= 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.allow(r, uid, "payment"); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := logging.WithOrderID(r.Context(), req.OrderID)
	p, err := s.paymentUC.CreatePayment(ctx, uid, req.OrderID, req.Provider, key)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentFailed) && p != nil {
			writeJSON(w, http.StatusPaymentRequired, struct {
				errorBody
				Payment paymentDTO `json:"payment"`
			}{errorBody{Error: err.Error()}, toPaymentDTO(p)})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = string(model.ProviderMock)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	p, err := s.paymentUC.HandleCallback(r.Context(), provider, body, r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"intent_status": string(p.Status),
	})
}

func (s *Server) activateEsim(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OrderID <= 0 {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	ctx := logging.WithOrderID(r.Context(), req.OrderID)
	p, err := s.esimUC.Activate(ctx, callerID(r), req.OrderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEsimDTO(p))
}

func (s *Server) listMyEsims(w http.ResponseWriter, r *http.Request) {
	list, err := s.esimUC.ListForUser(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]esimDTO, 0, len(list))
	for _, p := range list {
		out = append(out, toEsimDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEsim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.esimUC.GetForUser(r.Context(), callerID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEsimDTO(p))
}
