package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"leadwallet/internal/apperror"
	"leadwallet/internal/config"
	"leadwallet/internal/model"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// BackendClient talks to the lead-generation REST API on behalf of one
// authenticated user.
type BackendClient interface {
	GetWallet(ctx context.Context) (*model.Wallet, error)
	CreateRechargeOrder(ctx context.Context, amount decimal.Decimal, currency model.Currency) (*model.Order, error)
	VerifyRecharge(ctx context.Context, proof model.PaymentProof, amount decimal.Decimal, currency model.Currency) (*model.Wallet, error)
	CreateSubscriptionOrder(ctx context.Context, plan model.Plan, currency model.Currency) (*model.Order, error)
	VerifySubscription(ctx context.Context, proof model.PaymentProof, currency model.Currency) (*model.Subscription, error)
}

type backendClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	token      string
}

type rechargeOrderRequest struct {
	Amount   json.Number    `json:"amount"`
	Currency model.Currency `json:"currency"`
}

type verifyRechargeRequest struct {
	RazorpayOrderID   string         `json:"razorpayOrderId"`
	RazorpayPaymentID string         `json:"razorpayPaymentId"`
	RazorpaySignature string         `json:"razorpaySignature"`
	Amount            json.Number    `json:"amount"`
	Currency          model.Currency `json:"currency"`
}

type subscriptionOrderRequest struct {
	Plan     model.Plan     `json:"plan"`
	Currency model.Currency `json:"currency"`
}

type verifySubscriptionRequest struct {
	RazorpayOrderID   string         `json:"razorpayOrderId"`
	RazorpayPaymentID string         `json:"razorpayPaymentId"`
	RazorpaySignature string         `json:"razorpaySignature"`
	Currency          model.Currency `json:"currency"`
}

type orderResponse struct {
	Order *model.Order `json:"order"`
}

type verifyRechargeResponse struct {
	Message string        `json:"message"`
	Wallet  *model.Wallet `json:"wallet"`
}

type verifySubscriptionResponse struct {
	Message      string              `json:"message"`
	Subscription *model.Subscription `json:"subscription"`
}

// BackendFactory builds a client bound to a user's bearer token.
type BackendFactory func(token string) BackendClient

func NewBackendFactory(cfg *config.Backend) BackendFactory {
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}
	return func(token string) BackendClient {
		return &backendClientImpl{
			httpClient: httpClient,
			baseApiURL: strings.TrimRight(cfg.BaseApiURL, "/"),
			token:      token,
		}
	}
}

func NewBackendClient(cfg *config.Backend, token string) BackendClient {
	return NewBackendFactory(cfg)(token)
}

func (c *backendClientImpl) GetWallet(ctx context.Context) (*model.Wallet, error) {
	var wallet model.Wallet
	if err := c.do(ctx, http.MethodGet, "/users/wallet/transactions", nil, &wallet); err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &wallet, nil
}

func (c *backendClientImpl) CreateRechargeOrder(ctx context.Context, amount decimal.Decimal, currency model.Currency) (*model.Order, error) {
	var res orderResponse
	err := c.do(ctx, http.MethodPost, "/users/wallet/recharge/order", &rechargeOrderRequest{
		Amount:   json.Number(amount.String()),
		Currency: currency,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("create recharge order: %w", err)
	}
	if res.Order == nil || res.Order.ID == "" {
		return nil, fmt.Errorf("create recharge order: response has no order id")
	}
	if res.Order.Currency == "" {
		res.Order.Currency = currency
	}
	return res.Order, nil
}

func (c *backendClientImpl) VerifyRecharge(ctx context.Context, proof model.PaymentProof, amount decimal.Decimal, currency model.Currency) (*model.Wallet, error) {
	var res verifyRechargeResponse
	err := c.do(ctx, http.MethodPost, "/users/wallet/recharge/verify", &verifyRechargeRequest{
		RazorpayOrderID:   proof.GatewayOrderID,
		RazorpayPaymentID: proof.GatewayPaymentID,
		RazorpaySignature: proof.GatewaySignature,
		Amount:            json.Number(amount.String()),
		Currency:          currency,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("verify recharge: %w", err)
	}
	return res.Wallet, nil
}

func (c *backendClientImpl) CreateSubscriptionOrder(ctx context.Context, plan model.Plan, currency model.Currency) (*model.Order, error) {
	var res orderResponse
	err := c.do(ctx, http.MethodPost, "/users/subscription/order", &subscriptionOrderRequest{
		Plan:     plan,
		Currency: currency,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("create subscription order: %w", err)
	}
	if res.Order == nil || res.Order.ID == "" {
		return nil, fmt.Errorf("create subscription order: response has no order id")
	}
	if res.Order.Currency == "" {
		res.Order.Currency = currency
	}
	return res.Order, nil
}

func (c *backendClientImpl) VerifySubscription(ctx context.Context, proof model.PaymentProof, currency model.Currency) (*model.Subscription, error) {
	var res verifySubscriptionResponse
	err := c.do(ctx, http.MethodPost, "/users/subscription/verify", &verifySubscriptionRequest{
		RazorpayOrderID:   proof.GatewayOrderID,
		RazorpayPaymentID: proof.GatewayPaymentID,
		RazorpaySignature: proof.GatewaySignature,
		Currency:          currency,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("verify subscription: %w", err)
	}
	return res.Subscription, nil
}

func (c *backendClientImpl) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperror.FromResponse(resp.StatusCode, b)
	}

	// 204/205 carry no body
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
