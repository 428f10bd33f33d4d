package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"leadwallet/internal/apperror"
	"leadwallet/internal/config"
	"leadwallet/internal/model"
	"leadwallet/pkg/logger"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrCheckoutNotFound = errors.New("checkout session not found")
	ErrCheckoutSettled  = errors.New("checkout session already settled")
	ErrCheckoutOpen     = errors.New("checkout session already open for order")
)

type CheckoutOutcome string

const (
	CheckoutSucceeded CheckoutOutcome = "SUCCEEDED"
	CheckoutDismissed CheckoutOutcome = "DISMISSED"
	CheckoutFailed    CheckoutOutcome = "FAILED"
)

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type Theme struct {
	Color string `json:"color"`
}

// CheckoutOptions mirrors the options object handed to the Razorpay widget.
// handler and modal.ondismiss are bound by the checkout host page.
type CheckoutOptions struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    model.Currency    `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OrderID     string            `json:"order_id"`
	Prefill     Prefill           `json:"prefill"`
	Notes       map[string]string `json:"notes,omitempty"`
	Theme       Theme             `json:"theme"`
}

// GatewayFailure is the error object of the widget's payment.failed event.
type GatewayFailure struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Step        string `json:"step"`
	Reason      string `json:"reason"`
}

func (f *GatewayFailure) Error() string {
	return fmt.Sprintf("payment failed: %s (%s)", f.Description, f.Code)
}

type CheckoutResult struct {
	Outcome CheckoutOutcome
	Proof   *model.PaymentProof
	Failure *GatewayFailure
}

// GatewayBridge adapts the callback-driven checkout widget into a blocking
// OpenCheckout call. The widget reports back through Succeed, Dismiss or Fail.
type GatewayBridge interface {
	EnsureLoaded(ctx context.Context) bool
	Loaded() bool
	Script() ([]byte, bool)
	Begin(opts CheckoutOptions) (*PendingCheckout, error)
	OpenCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error)
	Pending(orderID string) (CheckoutOptions, bool)
	Succeed(orderID string, proof model.PaymentProof) error
	Dismiss(orderID string) error
	Fail(orderID string, failure GatewayFailure) error
}

type checkoutSession struct {
	opts    CheckoutOptions
	result  chan *CheckoutResult
	settled bool
}

type razorpayBridgeImpl struct {
	httpClient    *http.Client
	scriptURL     string
	scriptTimeout time.Duration
	log           *logger.Logger

	flight singleflight.Group

	mu       sync.RWMutex
	script   []byte
	sessions map[string]*checkoutSession
}

func NewRazorpayBridge(cfg *config.Razorpay, log *logger.Logger) GatewayBridge {
	timeout := cfg.ScriptTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &razorpayBridgeImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		scriptURL:     cfg.CheckoutScriptURL,
		scriptTimeout: timeout,
		log:           log.Named("razorpay"),
		sessions:      make(map[string]*checkoutSession),
	}
}

// EnsureLoaded fetches the checkout script once. Concurrent callers share the
// in-flight download; a failed download is retried by the next caller.
func (b *razorpayBridgeImpl) EnsureLoaded(ctx context.Context) bool {
	if b.Loaded() {
		return true
	}

	ch := b.flight.DoChan("checkout-script", func() (interface{}, error) {
		return nil, b.loadScript()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			b.log.Errorw("failed to load checkout script", "url", b.scriptURL, "error", res.Err)
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *razorpayBridgeImpl) loadScript() error {
	if b.Loaded() {
		return nil
	}

	// detached from the caller: other waiters share this download
	ctx, cancel := context.WithTimeout(context.Background(), b.scriptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.scriptURL, nil)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("checkout script status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read checkout script: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("checkout script is empty")
	}

	b.mu.Lock()
	b.script = body
	b.mu.Unlock()

	b.log.Infow("checkout script loaded", "bytes", len(body))
	return nil
}

func (b *razorpayBridgeImpl) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.script != nil
}

func (b *razorpayBridgeImpl) Script() ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.script, b.script != nil
}

// Begin registers a checkout for opts.OrderID. Callbacks for the order are
// accepted from this point on.
func (b *razorpayBridgeImpl) Begin(opts CheckoutOptions) (*PendingCheckout, error) {
	if !b.Loaded() {
		return nil, apperror.New(apperror.CategoryGatewayLoadFailure, apperror.MessageGatewayLoadFailed)
	}
	if opts.OrderID == "" {
		return nil, fmt.Errorf("open checkout: order id is required")
	}

	sess := &checkoutSession{
		opts:   opts,
		// one pending failure plus the settling outcome
		result: make(chan *CheckoutResult, 2),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.sessions[opts.OrderID]; exists {
		return nil, ErrCheckoutOpen
	}
	b.sessions[opts.OrderID] = sess

	return &PendingCheckout{bridge: b, orderID: opts.OrderID, sess: sess}, nil
}

// OpenCheckout registers a checkout and blocks until the widget reports an
// outcome or ctx is done.
func (b *razorpayBridgeImpl) OpenCheckout(ctx context.Context, opts CheckoutOptions) (*CheckoutResult, error) {
	pending, err := b.Begin(opts)
	if err != nil {
		return nil, err
	}
	defer pending.Release()
	return pending.Wait(ctx)
}

func (b *razorpayBridgeImpl) release(orderID string, sess *checkoutSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions[orderID] == sess {
		delete(b.sessions, orderID)
	}
}

// PendingCheckout is a registered checkout waiting for its widget callback.
type PendingCheckout struct {
	bridge  *razorpayBridgeImpl
	orderID string
	sess    *checkoutSession
}

func (p *PendingCheckout) OrderID() string {
	return p.orderID
}

func (p *PendingCheckout) Wait(ctx context.Context) (*CheckoutResult, error) {
	select {
	case res := <-p.sess.result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release forgets the checkout; later callbacks for it report not found.
func (p *PendingCheckout) Release() {
	p.bridge.release(p.orderID, p.sess)
}

func (b *razorpayBridgeImpl) Pending(orderID string) (CheckoutOptions, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[orderID]
	if !ok || sess.settled {
		return CheckoutOptions{}, false
	}
	return sess.opts, true
}

func (b *razorpayBridgeImpl) Succeed(orderID string, proof model.PaymentProof) error {
	return b.settle(orderID, &CheckoutResult{Outcome: CheckoutSucceeded, Proof: &proof})
}

func (b *razorpayBridgeImpl) Dismiss(orderID string) error {
	return b.settle(orderID, &CheckoutResult{Outcome: CheckoutDismissed})
}

// Fail reports a failed payment. The widget stays open after payment.failed,
// so the checkout keeps accepting a later success or dismiss.
func (b *razorpayBridgeImpl) Fail(orderID string, failure GatewayFailure) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[orderID]
	if !ok {
		return ErrCheckoutNotFound
	}
	if sess.settled {
		return ErrCheckoutSettled
	}
	if len(sess.result) == 0 {
		sess.result <- &CheckoutResult{Outcome: CheckoutFailed, Failure: &failure}
	}
	return nil
}

// settle delivers the final outcome for a session. Later callbacks for the
// same order are rejected so a double-fired handler cannot verify twice.
func (b *razorpayBridgeImpl) settle(orderID string, res *CheckoutResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[orderID]
	if !ok {
		return ErrCheckoutNotFound
	}
	if sess.settled {
		return ErrCheckoutSettled
	}
	sess.settled = true
	sess.result <- res
	return nil
}
