package model

import (
	"fmt"
	"strings"
)

type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case CurrencyINR, CurrencyUSD:
		return c, nil
	case "":
		return "", fmt.Errorf("currency is required")
	default:
		return "", fmt.Errorf("unsupported currency %q", s)
	}
}

func (c Currency) Symbol() string {
	switch c {
	case CurrencyINR:
		return "₹"
	case CurrencyUSD:
		return "$"
	}
	return string(c) + " "
}

// Order is issued by the backend for a single checkout attempt. Amount is in
// minor units (paise/cents) and may be zero for subscription orders.
type Order struct {
	ID       string   `json:"id"`
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
	Receipt  string   `json:"receipt,omitempty"`
}

// PaymentProof is returned by the gateway on a completed payment. It is
// forwarded verbatim to the backend, which is the only signature validator.
type PaymentProof struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	GatewaySignature string `json:"razorpay_signature"`
}
