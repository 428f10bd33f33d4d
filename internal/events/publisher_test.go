package events

import (
	"encoding/json"
	"errors"
	"leadwallet/internal/model"
	"leadwallet/pkg/logger"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (b *recordingBus) Publish(topic string, data []byte) error {
	b.topics = append(b.topics, topic)
	b.payloads = append(b.payloads, data)
	return b.err
}

func TestOutcomeTopic(t *testing.T) {
	e := CheckoutOutcome{Kind: model.AttemptKindRecharge, Status: model.AttemptStatusSucceeded}
	assert.Equal(t, "checkout.recharge.succeeded", e.Topic())

	e = CheckoutOutcome{Kind: model.AttemptKindSubscription, Status: model.AttemptStatusFailed}
	assert.Equal(t, "checkout.subscription.failed", e.Topic())
}

func TestPublisherOutcome(t *testing.T) {
	bus := &recordingBus{}
	p := NewPublisher(bus, logger.NewNop())

	p.Outcome(CheckoutOutcome{
		AttemptID:  "a-1",
		UserID:     "u-1",
		Kind:       model.AttemptKindRecharge,
		Status:     model.AttemptStatusSucceeded,
		Amount:     decimal.NewFromInt(250),
		Currency:   model.CurrencyINR,
		OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	require.Len(t, bus.topics, 1)
	assert.Equal(t, "checkout.recharge.succeeded", bus.topics[0])

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(bus.payloads[0], &got))
	assert.Equal(t, "a-1", got["attempt_id"])
	assert.Equal(t, "INR", got["currency"])
	assert.Equal(t, "250", got["amount"])
}

func TestPublisherSwallowsBusErrors(t *testing.T) {
	bus := &recordingBus{err: errors.New("nats: connection closed")}
	p := NewPublisher(bus, logger.NewNop())

	assert.NotPanics(t, func() {
		p.Outcome(CheckoutOutcome{AttemptID: "a-2", Kind: model.AttemptKindSubscription, Status: model.AttemptStatusFailed})
	})
	assert.Len(t, bus.topics, 1)
}

func TestNewBusWithoutConnection(t *testing.T) {
	bus := NewBus(nil)
	assert.NoError(t, bus.Publish("checkout.recharge.succeeded", []byte(`{}`)))
}
