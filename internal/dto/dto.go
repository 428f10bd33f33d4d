package dto

import (
	"leadwallet/internal/checkout"
	"leadwallet/internal/client"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/internal/wallet"

	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	User *model.Identity `json:"user"`
}

type SessionResponse struct {
	UserID string          `json:"userId"`
	Wallet wallet.Snapshot `json:"wallet"`
}

type RefreshResponse struct {
	Refreshed bool            `json:"refreshed"`
	Wallet    wallet.Snapshot `json:"wallet"`
}

type PricingResponse struct {
	Currency      model.Currency      `json:"currency"`
	DefaultAmount decimal.Decimal     `json:"defaultAmount"`
	Tiers         []pricing.Tier      `json:"tiers"`
	Plans         []pricing.PlanPrice `json:"plans"`
}

type RechargeRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Redirect string          `json:"redirect"`
}

type PromptRequest struct {
	Message  string `json:"message"`
	Currency string `json:"currency"`
	Redirect string `json:"redirect"`
}

type SubscriptionRequest struct {
	Plan     model.Plan `json:"plan"`
	Currency string     `json:"currency"`
}

type CheckoutResponse struct {
	Checkout checkout.State  `json:"checkout"`
	Wallet   wallet.Snapshot `json:"wallet"`
}

type PromptResponse struct {
	Prompt   checkout.PromptState `json:"prompt"`
	Checkout checkout.State       `json:"checkout"`
}

// CheckoutFailureRequest is the payload of the widget's payment.failed event.
type CheckoutFailureRequest struct {
	Error client.GatewayFailure `json:"error"`
}

type CallbackResponse struct {
	Step     checkout.Step     `json:"step"`
	Outcome  checkout.Step     `json:"outcome,omitempty"`
	Message  string            `json:"message,omitempty"`
	Redirect checkout.Redirect `json:"redirect,omitempty"`
}

type ErrorResponse struct {
	Category            string `json:"category"`
	Message             string `json:"message"`
	RedirectToLogin     bool   `json:"redirectToLogin,omitempty"`
	RedirectToDashboard bool   `json:"redirectToDashboard,omitempty"`
	RedirectToWallet    bool   `json:"redirectToWallet,omitempty"`
}
