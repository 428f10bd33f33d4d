package checkout

import (
	"leadwallet/internal/apperror"
	"leadwallet/internal/client"
	"leadwallet/internal/model"
	"time"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepIdle            Step = "IDLE"
	StepCreatingOrder   Step = "CREATING_ORDER"
	StepAwaitingGateway Step = "AWAITING_GATEWAY"
	StepVerifying       Step = "VERIFYING"
	StepSuccess         Step = "SUCCESS"
	StepCancelled       Step = "CANCELLED"
	StepFailed          Step = "FAILED"
)

func (s Step) InFlight() bool {
	switch s {
	case StepCreatingOrder, StepAwaitingGateway, StepVerifying:
		return true
	}
	return false
}

func (s Step) Terminal() bool {
	switch s {
	case StepSuccess, StepCancelled, StepFailed:
		return true
	}
	return false
}

func (s Step) attemptStatus() model.AttemptStatus {
	switch s {
	case StepCreatingOrder:
		return model.AttemptStatusCreatingOrder
	case StepAwaitingGateway:
		return model.AttemptStatusAwaitingGateway
	case StepVerifying:
		return model.AttemptStatusVerifying
	case StepSuccess:
		return model.AttemptStatusSucceeded
	case StepCancelled:
		return model.AttemptStatusCancelled
	}
	return model.AttemptStatusFailed
}

// Redirect is where the dashboard navigates after a successful payment.
type Redirect string

const (
	RedirectStay      Redirect = ""
	RedirectDashboard Redirect = "dashboard"
	RedirectWallet    Redirect = "wallet"
)

func ParseRedirect(s string) Redirect {
	switch Redirect(s) {
	case RedirectDashboard:
		return RedirectDashboard
	case RedirectWallet:
		return RedirectWallet
	}
	return RedirectStay
}

// Request describes one checkout attempt. Amount is ignored for
// subscriptions, whose price comes from the plan table.
type Request struct {
	Amount   decimal.Decimal
	Plan     model.Plan
	Currency model.Currency
	Redirect Redirect
	Auto     bool
}

// State is the render model of an orchestrator. Outcome keeps the last
// terminal step after the machine has returned to Idle.
type State struct {
	Step      Step              `json:"step"`
	Loading   bool              `json:"loading"`
	Outcome   Step              `json:"outcome,omitempty"`
	Category  apperror.Category `json:"category,omitempty"`
	Message   string            `json:"message,omitempty"`
	AttemptID string            `json:"attemptId,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency model.Currency  `json:"currency,omitempty"`
	Plan     model.Plan      `json:"plan,omitempty"`
	Auto     bool            `json:"auto,omitempty"`

	Order       *model.Order            `json:"order,omitempty"`
	Checkout    *client.CheckoutOptions `json:"checkout,omitempty"`
	CheckoutURL string                  `json:"checkoutUrl,omitempty"`

	Redirect   Redirect   `json:"redirect,omitempty"`
	RedirectAt *time.Time `json:"redirectAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
