package checkout

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"leadwallet/internal/apperror"
	"leadwallet/internal/client"
	"leadwallet/internal/model"
	"leadwallet/internal/repository"
	"time"
)

const lateVerifyTimeout = 30 * time.Second

// gatewayOrder is an order handed to the gateway by this orchestrator. It
// outlives the attempt so callbacks arriving late still find their attempt.
type gatewayOrder struct {
	attemptID string
	gen       uint64
	req       Request

	paid    bool   // a payment proof was accepted for the order
	handled uint64 // callbacks processed so far
	last    State  // state after the latest processed callback
}

func (o *Orchestrator) track(orderID string, gen uint64, attemptID string, req Request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[orderID] = &gatewayOrder{
		attemptID: attemptID,
		gen:       gen,
		req:       req,
	}
}

func (o *Orchestrator) markPaid(orderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec := o.orders[orderID]; rec != nil {
		rec.paid = true
	}
}

func (o *Orchestrator) markHandled(orderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec := o.orders[orderID]; rec != nil {
		rec.handled++
		o.broadcast()
	}
}

// Owns reports whether orderID was opened by attempt attemptID of this
// orchestrator. Checkout pages and callbacks carry the attempt id.
func (o *Orchestrator) Owns(orderID, attemptID string) bool {
	o.mu.Lock()
	rec, ok := o.orders[orderID]
	o.mu.Unlock()
	return ok && subtle.ConstantTimeCompare([]byte(rec.attemptID), []byte(attemptID)) == 1
}

// Succeed hands a payment for orderID to the attempt waiting on it and
// returns the state it led to. A payment that arrives after its attempt
// stopped waiting is verified here. Each order is verified at most once.
func (o *Orchestrator) Succeed(ctx context.Context, orderID string, proof model.PaymentProof) (State, error) {
	o.mu.Lock()
	rec, ok := o.orders[orderID]
	if !ok {
		o.mu.Unlock()
		return State{}, fmt.Errorf("order %s: %w", orderID, client.ErrCheckoutNotFound)
	}
	if rec.paid {
		s := o.orderState(rec)
		o.mu.Unlock()
		o.log.Infow("duplicate gateway callback ignored", "order_id", orderID, "callback", "success")
		return s, nil
	}
	rec.paid = true
	seq := rec.handled
	err := o.bridge.Succeed(orderID, proof)
	o.mu.Unlock()

	switch {
	case err == nil:
		return o.waitHandled(ctx, rec, seq)
	case errors.Is(err, client.ErrCheckoutNotFound), errors.Is(err, client.ErrCheckoutSettled):
		o.log.Warnw("payment arrived after checkout ended, verifying", "attempt_id", rec.attemptID, "order_id", orderID)
		return o.verifyLate(ctx, orderID, rec, proof), nil
	}

	o.mu.Lock()
	rec.paid = false
	o.mu.Unlock()
	return State{}, err
}

func (o *Orchestrator) Dismiss(ctx context.Context, orderID string) (State, error) {
	return o.deliver(ctx, orderID, "dismiss", func() error {
		return o.bridge.Dismiss(orderID)
	})
}

func (o *Orchestrator) Fail(ctx context.Context, orderID string, failure client.GatewayFailure) (State, error) {
	return o.deliver(ctx, orderID, "failure", func() error {
		return o.bridge.Fail(orderID, failure)
	})
}

// deliver passes a non-payment callback to the bridge. Callbacks for an order
// that is no longer open are acknowledged with its current state.
func (o *Orchestrator) deliver(ctx context.Context, orderID, callback string, fn func() error) (State, error) {
	o.mu.Lock()
	rec, ok := o.orders[orderID]
	if !ok {
		o.mu.Unlock()
		return State{}, fmt.Errorf("order %s: %w", orderID, client.ErrCheckoutNotFound)
	}
	seq := rec.handled
	err := fn()
	s := o.orderState(rec)
	o.mu.Unlock()

	if err == nil {
		return o.waitHandled(ctx, rec, seq)
	}
	if errors.Is(err, client.ErrCheckoutNotFound) || errors.Is(err, client.ErrCheckoutSettled) {
		o.log.Infow("duplicate gateway callback ignored", "order_id", orderID, "callback", callback)
		return s, nil
	}
	return s, err
}

// verifyLate verifies a payment whose attempt is no longer waiting on the
// gateway and records the outcome against that attempt.
func (o *Orchestrator) verifyLate(ctx context.Context, orderID string, rec *gatewayOrder, proof model.PaymentProof) State {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lateVerifyTimeout)
	defer cancel()

	o.recordProgress(rec.attemptID, repository.AttemptUpdate{
		Status:           model.AttemptStatusVerifying,
		GatewayPaymentID: proof.GatewayPaymentID,
	})

	if err := o.purchase.verify(ctx, rec.req, proof); err != nil {
		o.log.Errorw("payment verification failed",
			"attempt_id", rec.attemptID,
			"order_id", orderID,
			"payment_id", proof.GatewayPaymentID,
			"error", err,
		)
		o.finish(rec.gen, rec.attemptID, rec.req, orderID, StepFailed, apperror.CategoryVerificationFailure, apperror.MessageVerificationFailed)
	} else {
		o.finish(rec.gen, rec.attemptID, rec.req, orderID, StepSuccess, "", o.successMessage(rec.req))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.orderState(rec)
}

// waitHandled blocks until a callback after seq was processed for rec.
func (o *Orchestrator) waitHandled(ctx context.Context, rec *gatewayOrder, seq uint64) (State, error) {
	for {
		o.mu.Lock()
		done, s, ch, closed := rec.handled > seq, o.orderState(rec), o.changed, o.closed
		o.mu.Unlock()

		if done {
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

// orderState is the live state while rec's attempt is current, and the
// state its last callback left otherwise. Callers hold o.mu.
func (o *Orchestrator) orderState(rec *gatewayOrder) State {
	if rec.gen == o.gen && !o.closed {
		return o.state
	}
	return rec.last
}
