package checkout

import (
	"context"
	"fmt"
	"leadwallet/internal/apperror"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/internal/wallet"
)

// purchase is what differs between a wallet recharge and a subscription
// purchase; the orchestrator drives both through the same state machine.
type purchase interface {
	kind() model.AttemptKind
	prepare(req Request) (Request, error)
	createOrder(ctx context.Context, req Request) (*model.Order, error)
	verify(ctx context.Context, req Request, proof model.PaymentProof) error
	description(req Request) string
	notes(req Request) map[string]string
	creatingMessage() string
	successMessage(req Request) string
	cancelledMessage() string
	failureFallback() string
}

type rechargePurchase struct {
	store               *wallet.Store
	prices              *pricing.Table
	requireSubscription bool
}

func (p *rechargePurchase) kind() model.AttemptKind {
	return model.AttemptKindRecharge
}

func (p *rechargePurchase) prepare(req Request) (Request, error) {
	if _, err := p.prices.Tiers(req.Currency); err != nil {
		return req, apperror.Wrap(apperror.CategoryInvalidRequest, "Select a supported currency", err)
	}
	if req.Amount.IsZero() {
		amount, _ := p.prices.DefaultAmount(req.Currency)
		req.Amount = amount
	}
	if _, ok := p.prices.CoinsFor(req.Currency, req.Amount); !ok {
		return req, apperror.New(apperror.CategoryInvalidRequest, "Select a valid recharge amount")
	}
	if p.requireSubscription && !p.store.SubscriptionActive() {
		return req, apperror.New(apperror.CategorySubscriptionRequired, "An active subscription is required to recharge your wallet")
	}
	req.Plan = ""
	return req, nil
}

func (p *rechargePurchase) createOrder(ctx context.Context, req Request) (*model.Order, error) {
	return p.store.CreateRechargeOrder(ctx, req.Amount, req.Currency)
}

func (p *rechargePurchase) verify(ctx context.Context, req Request, proof model.PaymentProof) error {
	_, err := p.store.VerifyRecharge(ctx, proof, req.Amount, req.Currency)
	return err
}

func (p *rechargePurchase) description(Request) string {
	return "Wallet Recharge"
}

func (p *rechargePurchase) notes(req Request) map[string]string {
	return map[string]string{
		"purpose": "wallet_recharge",
		"amount":  req.Amount.String(),
	}
}

func (p *rechargePurchase) creatingMessage() string {
	return "Creating recharge order..."
}

func (p *rechargePurchase) successMessage(req Request) string {
	added := req.Currency.Symbol() + req.Amount.String()
	if coins, ok := p.prices.CoinsFor(req.Currency, req.Amount); ok {
		return fmt.Sprintf("Payment successful! Added %s to your wallet (%d LeadsCoins)", added, coins)
	}
	return fmt.Sprintf("Payment successful! Added %s to your wallet", added)
}

func (p *rechargePurchase) cancelledMessage() string {
	return "Payment cancelled"
}

func (p *rechargePurchase) failureFallback() string {
	return "Failed to process recharge"
}

type subscriptionPurchase struct {
	store  *wallet.Store
	prices *pricing.Table
}

func (p *subscriptionPurchase) kind() model.AttemptKind {
	return model.AttemptKindSubscription
}

func (p *subscriptionPurchase) prepare(req Request) (Request, error) {
	if !req.Plan.Valid() {
		return req, apperror.New(apperror.CategoryInvalidRequest, "Select a valid plan")
	}
	price, err := p.prices.PlanPrice(req.Plan, req.Currency)
	if err != nil {
		return req, apperror.Wrap(apperror.CategoryInvalidRequest, "Select a supported currency", err)
	}
	req.Amount = price
	return req, nil
}

func (p *subscriptionPurchase) createOrder(ctx context.Context, req Request) (*model.Order, error) {
	return p.store.CreateSubscriptionOrder(ctx, req.Plan, req.Currency)
}

func (p *subscriptionPurchase) verify(ctx context.Context, req Request, proof model.PaymentProof) error {
	_, err := p.store.VerifySubscription(ctx, proof, req.Currency)
	return err
}

func (p *subscriptionPurchase) description(req Request) string {
	return fmt.Sprintf("Premium Subscription (%s)", req.Plan)
}

func (p *subscriptionPurchase) notes(req Request) map[string]string {
	return map[string]string{
		"purpose": "subscription",
		"plan":    string(req.Plan),
	}
}

func (p *subscriptionPurchase) creatingMessage() string {
	return "Creating subscription order..."
}

func (p *subscriptionPurchase) successMessage(Request) string {
	return "Subscription activated successfully!"
}

func (p *subscriptionPurchase) cancelledMessage() string {
	return "Payment cancelled by user"
}

func (p *subscriptionPurchase) failureFallback() string {
	return "Failed to process subscription"
}
