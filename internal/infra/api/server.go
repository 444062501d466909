package api

import (
	"context"
	"net/http"
	"time"

	"esim-fulfillment/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	RequestTimeout     time.Duration
	RateLimitPerMinute int
}

// Server is the storefront HTTP API.
type Server struct {
	orderUC   usecase.OrderUseCase
	paymentUC usecase.PaymentUseCase
	esimUC    usecase.EsimUseCase
	auth      *AuthManager
	limiter   RateLimiter
	opts      Options
	log       *zerolog.Logger
}

// NewServer wires the use cases. limiter may be nil to disable rate limiting.
func NewServer(
	orderUC usecase.OrderUseCase,
	paymentUC usecase.PaymentUseCase,
	esimUC usecase.EsimUseCase,
	auth *AuthManager,
	limiter RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "API").Logger()
	return &Server{
		orderUC:   orderUC,
		paymentUC: paymentUC,
		esimUC:    esimUC,
		auth:      auth,
		limiter:   limiter,
		opts:      opts,
		log:       &l,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), middleware.StripSlashes)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Post("/payments/webhook", s.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.auth))

			r.Post("/orders", s.createOrder)
			r.Get("/orders/mine", s.listMyOrders)
			r.Get("/orders/{id}", s.getOrder)

			r.Post("/payments/create", s.createPayment)

			r.Post("/esims/activate", s.activateEsim)
			r.Get("/esims/mine", s.listMyEsims)
			r.Get("/esims/{id}", s.getEsim)

			r.With(RequireRole(RoleAdmin)).Post("/admin/orders/{id}/refund", s.refundOrder)
		})
	})
	return r
}

// NewHTTPServer builds the listener for handler with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
