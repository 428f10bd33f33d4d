package handler

import (
	"leadwallet/internal/apperror"
	"leadwallet/internal/checkout"
	"leadwallet/internal/dto"
	"leadwallet/internal/model"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/session"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type WalletHandler struct {
	sessions *session.Manager
	prices   *pricing.Table
	attempts repository.AttemptRepository
}

func NewWalletHandler(sessions *session.Manager, prices *pricing.Table, attempts repository.AttemptRepository) *WalletHandler {
	return &WalletHandler{
		sessions: sessions,
		prices:   prices,
		attempts: attempts,
	}
}

func (h *WalletHandler) GetWallet(c echo.Context) error {
	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Store.Snapshot())
}

// Refresh re-fetches the wallet unless a refresh ran within the refresh
// interval; dropped calls still return the cached snapshot.
func (h *WalletHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}

	refreshed, err := sess.Store.Refresh(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.RefreshResponse{
		Refreshed: refreshed,
		Wallet:    sess.Store.Snapshot(),
	})
}

func (h *WalletHandler) Pricing(c echo.Context) error {
	cur, err := currency(c.QueryParam("currency"))
	if err != nil {
		return err
	}

	tiers, err := h.prices.Tiers(cur)
	if err != nil {
		return apperror.Wrap(apperror.CategoryInvalidRequest, "Select a supported currency", err)
	}
	plans, _ := h.prices.Plans(cur)
	def, _ := h.prices.DefaultAmount(cur)

	return c.JSON(http.StatusOK, dto.PricingResponse{
		Currency:      cur,
		DefaultAmount: def,
		Tiers:         tiers,
		Plans:         plans,
	})
}

func (h *WalletHandler) StartRecharge(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RechargeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}
	cur, err := currency(req.Currency)
	if err != nil {
		return err
	}

	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}

	state, err := sess.Recharge.Start(ctx, checkout.Request{
		Amount:   req.Amount,
		Currency: cur,
		Redirect: checkout.ParseRedirect(req.Redirect),
	})
	if err != nil {
		return err
	}
	if err := expired(state); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.CheckoutResponse{
		Checkout: state,
		Wallet:   sess.Store.Snapshot(),
	})
}

// Prompt opens the recharge prompt for an upstream error. An
// insufficient-balance message starts a recharge of the default amount once.
func (h *WalletHandler) Prompt(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PromptRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}
	cur, err := currency(req.Currency)
	if err != nil {
		return err
	}

	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}

	sess.Prompt.Show(req.Message)
	state := sess.Recharge.Snapshot()
	if sess.Prompt.TakeAutoStart() {
		state, err = sess.Recharge.Start(ctx, checkout.Request{
			Currency: cur,
			Redirect: checkout.ParseRedirect(req.Redirect),
			Auto:     true,
		})
		if err != nil {
			sess.Prompt.Clear()
			return err
		}
		if err := expired(state); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, dto.PromptResponse{
		Prompt:   sess.Prompt.State(),
		Checkout: state,
	})
}

func (h *WalletHandler) RechargeState(c echo.Context) error {
	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.CheckoutResponse{
		Checkout: sess.Recharge.Snapshot(),
		Wallet:   sess.Store.Snapshot(),
	})
}

func (h *WalletHandler) StartSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}
	cur, err := currency(req.Currency)
	if err != nil {
		return err
	}
	plan := req.Plan
	if plan == "" {
		plan = model.PlanMonthly
	}

	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}

	state, err := sess.Subscription.Start(ctx, checkout.Request{
		Plan:     plan,
		Currency: cur,
	})
	if err != nil {
		return err
	}
	if err := expired(state); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.CheckoutResponse{
		Checkout: state,
		Wallet:   sess.Store.Snapshot(),
	})
}

func (h *WalletHandler) SubscriptionState(c echo.Context) error {
	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.CheckoutResponse{
		Checkout: sess.Subscription.Snapshot(),
		Wallet:   sess.Store.Snapshot(),
	})
}

func (h *WalletHandler) Attempts(c echo.Context) error {
	ctx := c.Request().Context()

	sess, err := current(c, h.sessions)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	attempts := []*model.CheckoutAttempt{}
	if h.attempts != nil {
		attempts, err = h.attempts.ListByUser(ctx, sess.UserID, limit)
		if err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, attempts)
}

// expired turns an attempt that failed on an expired backend session into
// an error, so the caller is logged out.
func expired(state checkout.State) error {
	if state.Category != apperror.CategoryAuthExpired {
		return nil
	}
	e := apperror.New(apperror.CategoryAuthExpired, state.Message)
	e.RedirectToLogin = true
	return e
}
