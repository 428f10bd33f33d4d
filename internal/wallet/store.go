// Package wallet keeps the per-session view of a user's wallet and
// subscription. The backend owns the ledger; the store only caches what the
// backend last returned and never computes balances itself.
package wallet

import (
	"context"
	"fmt"
	"leadwallet/internal/client"
	"leadwallet/internal/model"
	"leadwallet/pkg/logger"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// RenewHintDays is the remaining-days threshold at which a renew hint is shown.
const RenewHintDays = 10

type Snapshot struct {
	Wallet        *model.Wallet       `json:"wallet"`
	Subscription  *model.Subscription `json:"subscription"`
	DaysRemaining int                 `json:"daysRemaining"`
	RenewSoon     bool                `json:"renewSoon"`
	RefreshedAt   *time.Time          `json:"refreshedAt,omitempty"`
}

type Option func(*Store)

// WithClock replaces time.Now; tests use it to step through the refresh gate.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Store struct {
	backend client.BackendClient
	log     *logger.Logger
	now     func() time.Time
	gate    *rate.Limiter

	mu           sync.RWMutex
	wallet       *model.Wallet
	subscription *model.Subscription
	refreshedAt  time.Time

	attached atomic.Bool
}

func NewStore(backend client.BackendClient, refreshInterval time.Duration, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     log.Named("wallet"),
		now:     time.Now,
		gate:    rate.NewLimiter(rate.Every(refreshInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.attached.Store(true)
	return s
}

// Seed hydrates the cache from a login identity. It reports whether the
// identity carried a wallet; callers refresh when it did not.
func (s *Store) Seed(identity *model.Identity) bool {
	if identity == nil || !s.attached.Load() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if identity.Subscription.Complete() {
		s.subscription = identity.Subscription.Clone()
	}
	if identity.Wallet == nil {
		return false
	}
	s.wallet = identity.Wallet.Clone()
	return true
}

// Refresh re-fetches the wallet. Calls inside the refresh interval of the last
// network refresh are dropped and report false with no error.
func (s *Store) Refresh(ctx context.Context) (bool, error) {
	if !s.attached.Load() {
		return false, nil
	}
	if !s.gate.AllowN(s.now(), 1) {
		s.log.Debugw("refresh dropped by gate")
		return false, nil
	}

	wallet, err := s.backend.GetWallet(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh wallet: %w", err)
	}

	if !s.attached.Load() {
		return false, nil
	}

	s.mu.Lock()
	s.wallet = wallet
	s.refreshedAt = s.now()
	s.mu.Unlock()

	return true, nil
}

func (s *Store) CreateRechargeOrder(ctx context.Context, amount decimal.Decimal, currency model.Currency) (*model.Order, error) {
	return s.backend.CreateRechargeOrder(ctx, amount, currency)
}

// VerifyRecharge forwards the proof and, when the backend returns a wallet,
// replaces the cached one with it.
func (s *Store) VerifyRecharge(ctx context.Context, proof model.PaymentProof, amount decimal.Decimal, currency model.Currency) (*model.Wallet, error) {
	wallet, err := s.backend.VerifyRecharge(ctx, proof, amount, currency)
	if err != nil {
		return nil, err
	}
	if wallet != nil && s.attached.Load() {
		s.mu.Lock()
		s.wallet = wallet.Clone()
		s.mu.Unlock()
	}
	return wallet, nil
}

func (s *Store) CreateSubscriptionOrder(ctx context.Context, plan model.Plan, currency model.Currency) (*model.Order, error) {
	return s.backend.CreateSubscriptionOrder(ctx, plan, currency)
}

func (s *Store) VerifySubscription(ctx context.Context, proof model.PaymentProof, currency model.Currency) (*model.Subscription, error) {
	sub, err := s.backend.VerifySubscription(ctx, proof, currency)
	if err != nil {
		return nil, err
	}
	if sub != nil && s.attached.Load() {
		s.mu.Lock()
		s.subscription = sub.Clone()
		s.mu.Unlock()
	}
	return sub, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Wallet:       s.wallet.Clone(),
		Subscription: s.subscription.Clone(),
	}
	if s.subscription != nil {
		snap.DaysRemaining = s.subscription.DaysRemaining(s.now())
		snap.RenewSoon = s.subscription.IsActive && snap.DaysRemaining <= RenewHintDays
	}
	if !s.refreshedAt.IsZero() {
		t := s.refreshedAt
		snap.RefreshedAt = &t
	}
	return snap
}

// SubscriptionActive reports whether the cached subscription is active and
// not past its end date.
func (s *Store) SubscriptionActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := s.subscription
	if sub == nil || !sub.IsActive {
		return false
	}
	return sub.EndDate.IsZero() || s.now().Before(sub.EndDate)
}

// Detach stops every later state write. In-flight backend calls still finish
// but their results are discarded.
func (s *Store) Detach() {
	s.attached.Store(false)
}

func (s *Store) Attached() bool {
	return s.attached.Load()
}
