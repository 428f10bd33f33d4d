// Package checkout runs the create order -> gateway -> verify -> refresh
// sequence for wallet recharges and subscription purchases.
package checkout

import (
	"context"
	"errors"
	"leadwallet/internal/apperror"
	"leadwallet/internal/client"
	"leadwallet/internal/events"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/wallet"
	"leadwallet/pkg/logger"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const recordTimeout = 5 * time.Second

var ErrClosed = errors.New("checkout closed")

// Config is the gateway presentation and timing shared by every attempt.
type Config struct {
	KeyID         string
	DisplayName   string
	ThemeColor    string
	BaseURL       string
	RedirectDelay time.Duration
	CloseDelay    time.Duration
}

type Deps struct {
	UserID   string
	Prefill  client.Prefill
	Store    *wallet.Store
	Bridge   client.GatewayBridge
	Prices   *pricing.Table
	Attempts repository.AttemptRepository
	Events   *events.Publisher
	Log      *logger.Logger
	Config   Config
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithOrderTracker is told about every gateway order as soon as it is opened,
// so gateway callbacks can be routed back to this orchestrator.
func WithOrderTracker(track func(orderID string, o *Orchestrator)) Option {
	return func(o *Orchestrator) {
		o.onOrder = track
	}
}

// WithTerminalHook runs fn after every terminal transition.
func WithTerminalHook(fn func(State)) Option {
	return func(o *Orchestrator) {
		o.onTerminal = append(o.onTerminal, fn)
	}
}

type Orchestrator struct {
	purchase purchase
	userID   string
	prefill  client.Prefill
	store    *wallet.Store
	bridge   client.GatewayBridge
	attempts repository.AttemptRepository
	events   *events.Publisher
	log      *logger.Logger
	cfg      Config

	now        func() time.Time
	onOrder    func(string, *Orchestrator)
	onTerminal []func(State)

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	state   State
	lastReq *Request
	gen     uint64
	changed chan struct{}
	reset   *time.Timer
	closed  bool
	orders  map[string]*gatewayOrder
}

func NewRechargeOrchestrator(deps Deps, requireSubscription bool, opts ...Option) *Orchestrator {
	return newOrchestrator(&rechargePurchase{
		store:               deps.Store,
		prices:              deps.Prices,
		requireSubscription: requireSubscription,
	}, deps, opts...)
}

func NewSubscriptionOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	return newOrchestrator(&subscriptionPurchase{
		store:  deps.Store,
		prices: deps.Prices,
	}, deps, opts...)
}

func newOrchestrator(p purchase, deps Deps, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		purchase:   p,
		userID:     deps.UserID,
		prefill:    deps.Prefill,
		store:      deps.Store,
		bridge:     deps.Bridge,
		attempts:   deps.Attempts,
		events:     deps.Events,
		log:        deps.Log.Named(strings.ToLower(string(p.kind()))).With("user_id", deps.UserID),
		cfg:        deps.Config,
		now:        time.Now,
		baseCtx:    ctx,
		cancelBase: cancel,
		changed:    make(chan struct{}),
		orders:     make(map[string]*gatewayOrder),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.state = State{Step: StepIdle, UpdatedAt: o.now()}
	return o
}

func (o *Orchestrator) Kind() model.AttemptKind {
	return o.purchase.kind()
}

func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start begins a new attempt and returns once the order is created, or the
// attempt failed before reaching the gateway. A second Start while an
// attempt is in flight is refused.
func (o *Orchestrator) Start(ctx context.Context, req Request) (State, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return State{}, ErrClosed
	}
	if o.state.Step.InFlight() {
		s := o.state
		o.mu.Unlock()
		return s, apperror.New(apperror.CategoryCheckoutInProgress, "A payment is already in progress")
	}

	req, err := o.purchase.prepare(req)
	if err != nil {
		s := o.state
		o.mu.Unlock()
		return s, err
	}

	if o.reset != nil {
		o.reset.Stop()
		o.reset = nil
	}
	o.gen++
	gen := o.gen
	attemptID := uuid.NewString()
	o.lastReq = &req
	o.state = State{
		Step:      StepCreatingOrder,
		Loading:   true,
		Message:   o.purchase.creatingMessage(),
		AttemptID: attemptID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Plan:      req.Plan,
		Auto:      req.Auto,
		Redirect:  req.Redirect,
		UpdatedAt: o.now(),
	}
	o.broadcast()
	o.wg.Add(1)
	o.mu.Unlock()

	o.log.Infow("checkout started", "attempt_id", attemptID, "amount", req.Amount, "currency", req.Currency, "plan", req.Plan, "auto", req.Auto)

	go o.run(gen, attemptID, req)

	return o.Wait(ctx, func(s State) bool {
		return s.AttemptID != attemptID || s.Step != StepCreatingOrder
	})
}

// Retry starts a new attempt with the request of the previous one.
func (o *Orchestrator) Retry(ctx context.Context) (State, error) {
	o.mu.Lock()
	last := o.lastReq
	o.mu.Unlock()
	if last == nil {
		return o.Snapshot(), apperror.New(apperror.CategoryInvalidRequest, "Nothing to retry")
	}
	req := *last
	req.Auto = false
	return o.Start(ctx, req)
}

// Wait blocks until cond holds for the current state or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		o.mu.Lock()
		s, ch, closed := o.state, o.changed, o.closed
		o.mu.Unlock()

		if cond(s) {
			return s, nil
		}
		if closed {
			return s, ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// WaitSettled blocks until no attempt is in flight.
func (o *Orchestrator) WaitSettled(ctx context.Context) (State, error) {
	return o.Wait(ctx, func(s State) bool { return !s.Step.InFlight() })
}

// Close abandons the attempt in flight and stops every later state change.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.reset != nil {
		o.reset.Stop()
		o.reset = nil
	}
	o.broadcast()
	o.mu.Unlock()

	o.cancelBase()
	o.wg.Wait()
}

func (o *Orchestrator) run(gen uint64, attemptID string, req Request) {
	defer o.wg.Done()
	ctx := o.baseCtx

	o.recordStart(attemptID, req)

	if !o.bridge.EnsureLoaded(ctx) {
		if ctx.Err() != nil {
			o.abandon(gen, attemptID, req, "")
			return
		}
		o.fail(gen, attemptID, req, "", apperror.New(apperror.CategoryGatewayLoadFailure, apperror.MessageGatewayLoadFailed))
		return
	}

	order, err := o.purchase.createOrder(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.abandon(gen, attemptID, req, "")
			return
		}
		o.log.Warnw("create order failed", "attempt_id", attemptID, "error", err)
		o.fail(gen, attemptID, req, "", orderError(err, o.purchase.failureFallback()))
		return
	}

	opts := o.checkoutOptions(order, req)
	pending, err := o.bridge.Begin(opts)
	if err != nil {
		o.fail(gen, attemptID, req, order.ID, apperror.Wrap(apperror.CategoryOf(err), apperror.MessageOf(err, o.purchase.failureFallback()), err))
		return
	}
	defer pending.Release()
	o.track(order.ID, gen, attemptID, req)
	if o.onOrder != nil {
		o.onOrder(order.ID, o)
	}

	ok := o.update(gen, func(s *State) {
		s.Step = StepAwaitingGateway
		s.Message = "Processing payment..."
		s.Order = order
		s.Checkout = &opts
		s.CheckoutURL = o.checkoutURL(order.ID, attemptID)
	})
	if !ok {
		o.abandon(gen, attemptID, req, order.ID)
		return
	}
	o.recordProgress(attemptID, repository.AttemptUpdate{
		Status:         model.AttemptStatusAwaitingGateway,
		GatewayOrderID: order.ID,
	})

	// The widget stays open after payment.failed and the user may pay the
	// same order again, so the order is watched until it is paid or dismissed.
	failed := false
	for {
		res, err := pending.Wait(ctx)
		if err != nil {
			if !failed {
				o.abandon(gen, attemptID, req, order.ID)
			}
			return
		}

		switch res.Outcome {
		case client.CheckoutFailed:
			failed = true
			msg := "Payment failed"
			if res.Failure != nil && res.Failure.Description != "" {
				msg = res.Failure.Description
			}
			o.log.Warnw("gateway reported payment failure", "attempt_id", attemptID, "order_id", order.ID, "failure", res.Failure)
			o.fail(gen, attemptID, req, order.ID, apperror.New(apperror.CategoryPaymentFailed, msg))
			continue
		case client.CheckoutDismissed:
			if failed {
				o.markHandled(order.ID)
				return
			}
			o.finish(gen, attemptID, req, order.ID, StepCancelled, "", o.purchase.cancelledMessage())
		case client.CheckoutSucceeded:
			o.markPaid(order.ID)
			o.verify(ctx, gen, attemptID, req, order.ID, *res.Proof)
		}
		return
	}
}

func (o *Orchestrator) verify(ctx context.Context, gen uint64, attemptID string, req Request, orderID string, proof model.PaymentProof) {
	o.update(gen, func(s *State) {
		s.Step = StepVerifying
		s.Loading = true
		s.Outcome = ""
		s.Category = ""
		s.Message = "Verifying payment..."
		s.Checkout = nil
	})
	o.recordProgress(attemptID, repository.AttemptUpdate{
		Status:           model.AttemptStatusVerifying,
		GatewayPaymentID: proof.GatewayPaymentID,
	})

	if err := o.purchase.verify(ctx, req, proof); err != nil {
		o.log.Errorw("payment verification failed",
			"attempt_id", attemptID,
			"order_id", orderID,
			"payment_id", proof.GatewayPaymentID,
			"error", err,
		)
		o.finish(gen, attemptID, req, orderID, StepFailed, apperror.CategoryVerificationFailure, apperror.MessageVerificationFailed)
		return
	}

	if _, err := o.store.Refresh(ctx); err != nil {
		o.log.Warnw("refresh after verify failed", "attempt_id", attemptID, "error", err)
	}

	o.finish(gen, attemptID, req, orderID, StepSuccess, "", o.successMessage(req))
}

func (o *Orchestrator) successMessage(req Request) string {
	switch req.Redirect {
	case RedirectWallet:
		return "Payment successful! Redirecting to wallet section..."
	case RedirectDashboard:
		return "Payment successful! Redirecting to dashboard..."
	}
	return o.purchase.successMessage(req)
}

// orderError keeps the backend's message verbatim. Categories the dashboard
// acts on (login, wallet redirects) pass through unchanged.
func orderError(err error, fallback string) *apperror.Error {
	var e *apperror.Error
	if errors.As(err, &e) && e.Category != apperror.CategoryUnknown {
		return e
	}
	return apperror.Wrap(apperror.CategoryOrderFailure, apperror.MessageOf(err, fallback), err)
}

func (o *Orchestrator) fail(gen uint64, attemptID string, req Request, orderID string, err *apperror.Error) {
	o.finish(gen, attemptID, req, orderID, StepFailed, err.Category, err.Message)
}

// abandon records an attempt cut short by Close.
func (o *Orchestrator) abandon(gen uint64, attemptID string, req Request, orderID string) {
	o.finish(gen, attemptID, req, orderID, StepCancelled, "", "Checkout closed")
}

func (o *Orchestrator) finish(gen uint64, attemptID string, req Request, orderID string, step Step, category apperror.Category, message string) {
	now := o.now()

	s := State{
		Step:      step,
		Outcome:   step,
		Category:  category,
		Message:   message,
		AttemptID: attemptID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Plan:      req.Plan,
		Auto:      req.Auto,
		Redirect:  req.Redirect,
		UpdatedAt: now,
	}
	if step == StepCancelled {
		s.Step = StepIdle
	}

	o.mu.Lock()
	applied := gen == o.gen && !o.closed
	if applied {
		o.state.Loading = false
		o.state.Outcome = step
		o.state.Category = category
		o.state.Message = message
		o.state.Checkout = nil
		o.state.UpdatedAt = now

		switch step {
		case StepCancelled:
			o.state.Step = StepIdle
		case StepSuccess:
			o.state.Step = StepSuccess
			delay := o.cfg.CloseDelay
			if req.Redirect != RedirectStay {
				delay = o.cfg.RedirectDelay
				at := now.Add(delay)
				o.state.RedirectAt = &at
			}
			o.scheduleReset(gen, delay)
		default:
			o.state.Step = StepFailed
			o.scheduleReset(gen, o.cfg.CloseDelay)
		}
		o.broadcast()
		s = o.state
	}
	if rec := o.orders[orderID]; rec != nil {
		rec.handled++
		rec.last = s
		if !applied {
			o.broadcast()
		}
	}
	o.mu.Unlock()

	o.log.Infow("checkout finished",
		"attempt_id", attemptID,
		"order_id", orderID,
		"outcome", step,
		"category", category,
	)

	status := step.attemptStatus()
	o.recordProgress(attemptID, repository.AttemptUpdate{
		Status:   status,
		Category: string(category),
		Message:  message,
	})
	if o.events != nil {
		o.events.Outcome(events.CheckoutOutcome{
			AttemptID:      attemptID,
			UserID:         o.userID,
			Kind:           o.purchase.kind(),
			Status:         status,
			GatewayOrderID: orderID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			Plan:           req.Plan,
			Category:       string(category),
			Message:        message,
			OccurredAt:     now,
		})
	}

	if applied {
		for _, fn := range o.onTerminal {
			fn(s)
		}
	}
}

// scheduleReset returns the machine to Idle after delay unless a newer
// attempt started meanwhile. Callers hold o.mu.
func (o *Orchestrator) scheduleReset(gen uint64, delay time.Duration) {
	if o.reset != nil {
		o.reset.Stop()
	}
	o.reset = time.AfterFunc(delay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.gen || o.closed || !o.state.Step.Terminal() {
			return
		}
		o.state.Step = StepIdle
		o.state.Loading = false
		o.state.UpdatedAt = o.now()
		o.reset = nil
		o.broadcast()
	})
}

func (o *Orchestrator) update(gen uint64, fn func(*State)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.closed {
		return false
	}
	fn(&o.state)
	o.state.UpdatedAt = o.now()
	o.broadcast()
	return true
}

// broadcast wakes every Wait. Callers hold o.mu.
func (o *Orchestrator) broadcast() {
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) checkoutOptions(order *model.Order, req Request) client.CheckoutOptions {
	amount := order.Amount
	if amount <= 0 {
		amount = pricing.MinorUnits(req.Amount)
	}
	currency := order.Currency
	if currency == "" {
		currency = req.Currency
	}
	return client.CheckoutOptions{
		Key:         o.cfg.KeyID,
		Amount:      amount,
		Currency:    currency,
		Name:        o.cfg.DisplayName,
		Description: o.purchase.description(req),
		OrderID:     order.ID,
		Prefill:     o.prefill,
		Notes:       o.purchase.notes(req),
		Theme:       client.Theme{Color: o.cfg.ThemeColor},
	}
}

func (o *Orchestrator) checkoutURL(orderID, attemptID string) string {
	return strings.TrimRight(o.cfg.BaseURL, "/") + "/api/checkout/" + url.PathEscape(orderID) + "?attempt=" + url.QueryEscape(attemptID)
}

func (o *Orchestrator) recordStart(attemptID string, req Request) {
	if o.attempts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := o.attempts.Create(ctx, &model.CheckoutAttempt{
		ID:       attemptID,
		UserID:   o.userID,
		Kind:     o.purchase.kind(),
		Amount:   req.Amount,
		Currency: req.Currency,
		Plan:     req.Plan,
		Status:   model.AttemptStatusCreatingOrder,
	})
	if err != nil {
		o.log.Errorw("failed to record checkout attempt", "attempt_id", attemptID, "error", err)
	}
}

func (o *Orchestrator) recordProgress(attemptID string, update repository.AttemptUpdate) {
	if o.attempts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := o.attempts.UpdateStatus(ctx, attemptID, update); err != nil {
		o.log.Errorw("failed to update checkout attempt", "attempt_id", attemptID, "status", update.Status, "error", err)
	}
}
