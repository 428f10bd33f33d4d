package events

import (
	"encoding/json"
	"leadwallet/internal/model"
	"leadwallet/pkg/logger"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutOutcome is published once per checkout attempt when it reaches a
// terminal state.
type CheckoutOutcome struct {
	AttemptID      string              `json:"attempt_id"`
	UserID         string              `json:"user_id"`
	Kind           model.AttemptKind   `json:"kind"`
	Status         model.AttemptStatus `json:"status"`
	GatewayOrderID string              `json:"gateway_order_id,omitempty"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       model.Currency      `json:"currency"`
	Plan           model.Plan          `json:"plan,omitempty"`
	Category       string              `json:"category,omitempty"`
	Message        string              `json:"message,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// Topic is checkout.<kind>.<status>, e.g. checkout.recharge.succeeded.
func (e CheckoutOutcome) Topic() string {
	return "checkout." + strings.ToLower(string(e.Kind)) + "." + strings.ToLower(string(e.Status))
}

type Publisher struct {
	bus MessageBus
	log *logger.Logger
}

func NewPublisher(bus MessageBus, log *logger.Logger) *Publisher {
	return &Publisher{
		bus: bus,
		log: log.Named("events"),
	}
}

// Outcome publishes e. Failures are logged and never returned: a lost event
// must not fail a payment that already went through.
func (p *Publisher) Outcome(e CheckoutOutcome) {
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Errorw("failed to marshal checkout outcome", "attempt_id", e.AttemptID, "error", err)
		return
	}
	if err := p.bus.Publish(e.Topic(), data); err != nil {
		p.log.Warnw("failed to publish checkout outcome", "topic", e.Topic(), "attempt_id", e.AttemptID, "error", err)
	}
}
