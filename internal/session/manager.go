// Package session keeps one wallet store and one pair of checkout
// orchestrators per signed-in dashboard user.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"leadwallet/internal/apperror"
	"leadwallet/internal/checkout"
	"leadwallet/internal/client"
	"leadwallet/internal/config"
	"leadwallet/internal/events"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/wallet"
	"leadwallet/pkg/logger"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type Session struct {
	Key          string
	UserID       string
	Name         string
	Email        string
	Store        *wallet.Store
	Recharge     *checkout.Orchestrator
	Subscription *checkout.Orchestrator
	Prompt       *checkout.Prompt

	closeOnce sync.Once
}

// Close detaches the store and abandons any checkout in flight.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Store.Detach()
		s.Recharge.Close()
		s.Subscription.Close()
		s.Prompt.Hide()
	})
}

type Manager struct {
	sessions *cache.Cache
	orders   *cache.Cache
	ttl      time.Duration

	backends client.BackendFactory
	bridge   client.GatewayBridge
	prices   *pricing.Table
	attempts repository.AttemptRepository
	events   *events.Publisher
	log      *logger.Logger
	cfg      *config.Config
}

func NewManager(
	cfg *config.Config,
	backends client.BackendFactory,
	bridge client.GatewayBridge,
	prices *pricing.Table,
	attempts repository.AttemptRepository,
	publisher *events.Publisher,
	log *logger.Logger,
) *Manager {
	ttl := cfg.Wallet.SessionTTL
	cleanup := ttl
	if cleanup > time.Minute {
		cleanup = time.Minute
	}

	m := &Manager{
		sessions: cache.New(ttl, cleanup),
		orders:   cache.New(ttl, cleanup),
		ttl:      ttl,
		backends: backends,
		bridge:   bridge,
		prices:   prices,
		attempts: attempts,
		events:   publisher,
		log:      log.Named("session"),
		cfg:      cfg,
	}
	m.sessions.OnEvicted(func(key string, v interface{}) {
		if sess, ok := v.(*Session); ok {
			sess.Close()
			m.log.Infow("session closed", "user_id", sess.UserID)
		}
	})
	return m
}

// Key derives the registry key from a bearer token so raw tokens are never
// held as map keys.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Open starts a session for token. A live session for the same token is kept
// with its checkouts and only has its store re-hydrated. The store is hydrated
// from identity when it carries a wallet and refreshed otherwise.
func (m *Manager) Open(ctx context.Context, token string, identity *model.Identity) (*Session, error) {
	if token == "" {
		return nil, apperror.New(apperror.CategoryAuthExpired, apperror.MessageSessionExpired)
	}
	if identity == nil {
		identity = &model.Identity{}
	}

	key := Key(token)
	if v, ok := m.sessions.Get(key); ok {
		return m.resume(ctx, key, v.(*Session), identity)
	}

	userID := identity.ID
	if userID == "" {
		userID = key[:16]
	}

	sess := &Session{
		Key:    key,
		UserID: userID,
		Name:   identity.Name,
		Email:  identity.Email,
		Prompt: checkout.NewPrompt(),
	}
	sess.Store = wallet.NewStore(m.backends(token), m.cfg.Wallet.RefreshInterval, m.log)

	deps := checkout.Deps{
		UserID:   userID,
		Prefill:  client.Prefill{Name: identity.Name, Email: identity.Email},
		Store:    sess.Store,
		Bridge:   m.bridge,
		Prices:   m.prices,
		Attempts: m.attempts,
		Events:   m.events,
		Log:      m.log,
		Config: checkout.Config{
			KeyID:         m.cfg.Razorpay.KeyID,
			DisplayName:   m.cfg.Razorpay.DisplayName,
			ThemeColor:    m.cfg.Razorpay.ThemeColor,
			BaseURL:       m.cfg.BaseURL,
			RedirectDelay: m.cfg.Wallet.RedirectDelay,
			CloseDelay:    m.cfg.Wallet.CloseDelay,
		},
	}
	track := checkout.WithOrderTracker(m.trackOrder)
	sess.Recharge = checkout.NewRechargeOrchestrator(deps, m.cfg.Wallet.RechargeRequiresSubscription, track,
		checkout.WithTerminalHook(func(s checkout.State) {
			switch s.Outcome {
			case checkout.StepCancelled, checkout.StepFailed:
				sess.Prompt.Clear()
			case checkout.StepSuccess:
				sess.Prompt.Hide()
			}
		}),
	)
	sess.Subscription = checkout.NewSubscriptionOrchestrator(deps, track)

	if !sess.Store.Seed(identity) {
		if _, err := sess.Store.Refresh(ctx); err != nil {
			if apperror.Is(err, apperror.CategoryAuthExpired) {
				sess.Close()
				return nil, err
			}
			m.log.Warnw("initial wallet refresh failed", "user_id", userID, "error", err)
		}
	}

	m.sessions.Set(key, sess, m.ttl)
	m.log.Infow("session opened", "user_id", userID)
	return sess, nil
}

func (m *Manager) resume(ctx context.Context, key string, sess *Session, identity *model.Identity) (*Session, error) {
	if !sess.Store.Seed(identity) {
		if _, err := sess.Store.Refresh(ctx); err != nil {
			if apperror.Is(err, apperror.CategoryAuthExpired) {
				m.sessions.Delete(key)
				return nil, err
			}
			m.log.Warnw("wallet refresh on resume failed", "user_id", sess.UserID, "error", err)
		}
	}

	m.sessions.Set(key, sess, m.ttl)
	m.log.Infow("session resumed", "user_id", sess.UserID)
	return sess, nil
}

// Get returns the session for token and extends its lifetime.
func (m *Manager) Get(token string) (*Session, bool) {
	key := Key(token)
	v, ok := m.sessions.Get(key)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	m.sessions.Set(key, sess, m.ttl)
	return sess, true
}

// Close ends the session for token. It reports whether one existed.
func (m *Manager) Close(token string) bool {
	key := Key(token)
	if _, ok := m.sessions.Get(key); !ok {
		return false
	}
	m.sessions.Delete(key)
	return true
}

func (m *Manager) trackOrder(orderID string, o *checkout.Orchestrator) {
	m.orders.Set(orderID, o, m.ttl)
}

// ByOrder finds the orchestrator that opened gateway order orderID.
func (m *Manager) ByOrder(orderID string) (*checkout.Orchestrator, error) {
	v, ok := m.orders.Get(orderID)
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, client.ErrCheckoutNotFound)
	}
	return v.(*checkout.Orchestrator), nil
}

func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

// Shutdown closes every open session.
func (m *Manager) Shutdown() {
	for key := range m.sessions.Items() {
		m.sessions.Delete(key)
	}
	m.orders.Flush()
}
