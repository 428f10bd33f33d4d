package session

import (
	"context"
	"leadwallet/internal/apperror"
	"leadwallet/internal/checkout"
	"leadwallet/internal/client"
	"leadwallet/internal/config"
	"leadwallet/internal/events"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/pkg/logger"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backendURL string, ttl time.Duration) *config.Config {
	return &config.Config{
		BaseURL: "http://bff.local",
		Backend: config.Backend{BaseApiURL: backendURL, Timeout: 5 * time.Second},
		Razorpay: config.Razorpay{
			KeyID:             "rzp_test_key",
			CheckoutScriptURL: "http://127.0.0.1:0/checkout.js",
			ScriptTimeout:     time.Second,
		},
		Wallet: config.Wallet{
			RefreshInterval:              5 * time.Second,
			RedirectDelay:                time.Second,
			CloseDelay:                   time.Second,
			SessionTTL:                   ttl,
			RechargeRequiresSubscription: true,
		},
	}
}

func setupManager(t *testing.T, status int, ttl time.Duration) (*Manager, *int32) {
	t.Helper()
	var walletCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/wallet/transactions" {
			atomic.AddInt32(&walletCalls, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"balance":75,"leadsCoins":150,"transactions":[]}`))
	}))
	t.Cleanup(backend.Close)

	cfg := testConfig(backend.URL, ttl)
	log := logger.NewNop()
	m := NewManager(
		cfg,
		client.NewBackendFactory(&cfg.Backend),
		client.NewRazorpayBridge(&cfg.Razorpay, log),
		pricing.NewTable(config.Plans{MonthlyINR: decimal.NewFromInt(399)}),
		nil,
		events.NewPublisher(events.NewNopBus(), log),
		log,
	)
	t.Cleanup(m.Shutdown)
	return m, &walletCalls
}

func TestOpen_SeedsFromIdentity(t *testing.T) {
	m, calls := setupManager(t, http.StatusOK, time.Minute)

	sess, err := m.Open(context.Background(), "tok-1", &model.Identity{
		ID:     "user-1",
		Name:   "Asha",
		Wallet: &model.Wallet{Balance: decimal.NewFromInt(20), CoinBalance: 40},
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.True(t, sess.Store.Snapshot().Wallet.Balance.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))

	got, ok := m.Get("tok-1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, m.Count())
}

func TestOpen_RefreshesWithoutWallet(t *testing.T) {
	m, calls := setupManager(t, http.StatusOK, time.Minute)

	sess, err := m.Open(context.Background(), "tok-2", nil)
	require.NoError(t, err)
	assert.Equal(t, Key("tok-2")[:16], sess.UserID)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, int64(150), sess.Store.Snapshot().Wallet.CoinBalance)
}

func TestOpen_ExpiredToken(t *testing.T) {
	m, _ := setupManager(t, http.StatusUnauthorized, time.Minute)

	_, err := m.Open(context.Background(), "tok-3", &model.Identity{ID: "user-3"})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CategoryAuthExpired))
	_, ok := m.Get("tok-3")
	assert.False(t, ok)

	_, err = m.Open(context.Background(), "", nil)
	assert.True(t, apperror.Is(err, apperror.CategoryAuthExpired))
}

func TestClose_DetachesSession(t *testing.T) {
	m, _ := setupManager(t, http.StatusOK, time.Minute)

	sess, err := m.Open(context.Background(), "tok-4", &model.Identity{ID: "user-4", Wallet: &model.Wallet{}})
	require.NoError(t, err)

	assert.True(t, m.Close("tok-4"))
	assert.False(t, m.Close("tok-4"))
	assert.False(t, sess.Store.Attached())

	_, err = sess.Recharge.Start(context.Background(), checkout.Request{Currency: model.CurrencyINR})
	assert.ErrorIs(t, err, checkout.ErrClosed)
}

func TestOpen_ResumesLiveSession(t *testing.T) {
	m, _ := setupManager(t, http.StatusOK, time.Minute)

	first, err := m.Open(context.Background(), "tok-5", &model.Identity{ID: "user-5", Wallet: &model.Wallet{}})
	require.NoError(t, err)
	second, err := m.Open(context.Background(), "tok-5", &model.Identity{
		ID:     "user-5",
		Wallet: &model.Wallet{Balance: decimal.NewFromInt(60), CoinBalance: 120},
	})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first.Recharge, second.Recharge)
	assert.True(t, second.Store.Attached())
	assert.Equal(t, int64(120), second.Store.Snapshot().Wallet.CoinBalance)
	assert.Equal(t, 1, m.Count())

	m.Close("tok-5")
	third, err := m.Open(context.Background(), "tok-5", &model.Identity{ID: "user-5", Wallet: &model.Wallet{}})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.False(t, first.Store.Attached())
}

func TestSessionExpiry(t *testing.T) {
	m, _ := setupManager(t, http.StatusOK, 30*time.Millisecond)

	sess, err := m.Open(context.Background(), "tok-6", &model.Identity{ID: "user-6", Wallet: &model.Wallet{}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !sess.Store.Attached() }, 2*time.Second, 10*time.Millisecond)
	_, ok := m.Get("tok-6")
	assert.False(t, ok)
}

func TestByOrder_Unknown(t *testing.T) {
	m, _ := setupManager(t, http.StatusOK, time.Minute)

	_, err := m.ByOrder("order_missing")
	assert.ErrorIs(t, err, client.ErrCheckoutNotFound)
}
