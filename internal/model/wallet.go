package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

type WalletTransaction struct {
	ID          string           `json:"_id"`
	Type        TransactionType  `json:"type"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Coins       int64            `json:"coins"`
	Description string           `json:"description"`
	Date        time.Time        `json:"date"`
}

type Wallet struct {
	Balance      decimal.Decimal     `json:"balance"`
	CoinBalance  int64               `json:"leadsCoins"`
	Transactions []WalletTransaction `json:"transactions"`
}

func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	c := *w
	c.Transactions = append([]WalletTransaction(nil), w.Transactions...)
	return &c
}

type Plan string

const (
	PlanMonthly   Plan = "MONTHLY"
	PlanQuarterly Plan = "QUARTERLY"
	PlanYearly    Plan = "YEARLY"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanMonthly, PlanQuarterly, PlanYearly:
		return true
	}
	return false
}

type Subscription struct {
	IsActive  bool      `json:"isActive"`
	Plan      Plan      `json:"plan"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Complete reports whether the snapshot carries everything needed to trust it
// as an active subscription.
func (s *Subscription) Complete() bool {
	return s != nil && s.IsActive && s.Plan != "" && !s.StartDate.IsZero() && !s.EndDate.IsZero()
}

// DaysRemaining counts whole days until EndDate. It is derived on every read
// and never stored.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s == nil || !s.IsActive || s.EndDate.IsZero() {
		return 0
	}
	return int(s.EndDate.Sub(now) / (24 * time.Hour))
}

func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Identity is the user payload returned by login/signup. Wallet and
// Subscription are present when the backend embedded a snapshot.
type Identity struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Wallet       *Wallet       `json:"wallet,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}
