package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ adapter.PaymentGateway = (*MockGateway)(nil)

// MockGateway is an in-process provider for development and tests.
// Every intent resolves to the configured outcome; requires_action intents are
// completed later through ParseCallback.
type MockGateway struct {
	outcome model.PaymentStatus
	log     *zerolog.Logger

	mu      sync.Mutex
	byKey   map[string]adapter.IntentResult
	entropy *ulid.MonotonicEntropy
}

func NewMockGateway(outcome string, logger *zerolog.Logger) (*MockGateway, error) {
	st := model.PaymentStatus(strings.ToLower(strings.TrimSpace(outcome)))
	if st == "" {
		st = model.PaymentStatusSucceeded
	}
	if !st.Valid() {
		return nil, fmt.Errorf("mock gateway outcome %q: %w", outcome, domain.ErrInvalidArgument)
	}
	l := logger.With().Str("component", "MockGateway").Logger()
	return &MockGateway{
		outcome: st,
		log:     &l,
		byKey:   make(map[string]adapter.IntentResult),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (g *MockGateway) Name() model.PaymentProvider { return model.ProviderMock }

func (g *MockGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	if req.AmountMinorUnits < 0 || !model.IsCurrencyCode(req.Currency) {
		return adapter.IntentResult{}, domain.ErrInvalidArgument
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dedupe := ""
	if req.IdempotencyKey != "" {
		dedupe = fmt.Sprintf("%d:%s", req.OrderID, req.IdempotencyKey)
		if res, ok := g.byKey[dedupe]; ok {
			return res, nil
		}
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	res := adapter.IntentResult{
		IntentID: "mock_intent_" + strings.ToLower(id.String()),
		Status:   g.outcome,
		Raw: map[string]any{
			"order_id":           req.OrderID,
			"amount_minor_units": req.AmountMinorUnits,
			"currency":           req.Currency,
			"description":        req.Description,
		},
	}
	if dedupe != "" {
		g.byKey[dedupe] = res
	}
	g.log.Debug().Int64("order_id", req.OrderID).Str("intent_id", res.IntentID).Str("status", string(res.Status)).Msg("mock intent created")
	return res, nil
}

type mockCallback struct {
	IntentID string         `json:"intent_id"`
	Status   string         `json:"status"`
	Action   string         `json:"action"`
	Metadata map[string]any `json:"metadata"`
}

// ParseCallback accepts {"intent_id": "...", "status": "succeeded|failed"}.
// The older {"action": "succeed|fail"} form is still understood.
func (g *MockGateway) ParseCallback(ctx context.Context, body []byte, header http.Header) (adapter.IntentResult, error) {
	var cb mockCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return adapter.IntentResult{}, fmt.Errorf("mock callback: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(cb.IntentID) == "" {
		return adapter.IntentResult{}, fmt.Errorf("mock callback: missing intent_id: %w", domain.ErrInvalidArgument)
	}
	status := model.PaymentStatus(strings.ToLower(cb.Status))
	if status == "" {
		status = model.PaymentStatusSucceeded
		if cb.Action != "" && cb.Action != "succeed" {
			status = model.PaymentStatusFailed
		}
	}
	if !status.Valid() {
		return adapter.IntentResult{}, fmt.Errorf("mock callback: status %q: %w", cb.Status, domain.ErrInvalidArgument)
	}

	raw := map[string]any{"intent_id": cb.IntentID, "status": string(status)}
	if len(cb.Metadata) > 0 {
		raw["metadata"] = cb.Metadata
	}
	return adapter.IntentResult{IntentID: cb.IntentID, Status: status, Raw: raw}, nil
}
