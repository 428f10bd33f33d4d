package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptKind string

const (
	AttemptKindRecharge     AttemptKind = "RECHARGE"
	AttemptKindSubscription AttemptKind = "SUBSCRIPTION"
)

type AttemptStatus string

const (
	AttemptStatusCreatingOrder   AttemptStatus = "CREATING_ORDER"
	AttemptStatusAwaitingGateway AttemptStatus = "AWAITING_GATEWAY"
	AttemptStatusVerifying       AttemptStatus = "VERIFYING"
	AttemptStatusSucceeded       AttemptStatus = "SUCCEEDED"
	AttemptStatusCancelled       AttemptStatus = "CANCELLED"
	AttemptStatusFailed          AttemptStatus = "FAILED"
)

// CheckoutAttempt is the local audit row of one order -> gateway -> verify run.
// The backend stays the source of truth for balances; this table only lets
// support find payments that left the gateway but were never credited.
type CheckoutAttempt struct {
	ID               string          `gorm:"primaryKey;size:36;not null" json:"id"`
	UserID           string          `gorm:"size:64;index;not null" json:"user_id"`
	Kind             AttemptKind     `gorm:"size:16;index;not null" json:"kind"`
	GatewayOrderID   string          `gorm:"size:64;index" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `gorm:"size:64" json:"gateway_payment_id,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency         Currency        `gorm:"size:8;not null" json:"currency"`
	Plan             Plan            `gorm:"size:16" json:"plan,omitempty"`
	Status           AttemptStatus   `gorm:"size:32;index;not null" json:"status"` // CREATING_ORDER, AWAITING_GATEWAY, VERIFYING, SUCCEEDED, CANCELLED, FAILED
	Category         string          `gorm:"size:32;index" json:"category,omitempty"`
	Message          string          `gorm:"size:512" json:"message,omitempty"`
	Resolved         bool            `gorm:"not null;default:false" json:"resolved"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
