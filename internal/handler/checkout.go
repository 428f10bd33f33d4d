package handler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"leadwallet/internal/apperror"
	"leadwallet/internal/checkout"
	"leadwallet/internal/client"
	"leadwallet/internal/dto"
	"leadwallet/internal/model"
	"leadwallet/internal/session"
	"leadwallet/pkg/logger"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const checkoutUnavailable = "This checkout is no longer available."

//go:embed templates/checkout.html
var checkoutPage string

var checkoutTemplate = template.Must(template.New("checkout").Parse(checkoutPage))

type checkoutPageData struct {
	Options     client.CheckoutOptions
	ScriptURL   string
	CallbackURL string
	AttemptID   string
}

// CheckoutHandler hosts the gateway widget and receives its callbacks. The
// page and callbacks carry no bearer token; they are addressed by gateway
// order id and must name the attempt that opened the order.
type CheckoutHandler struct {
	sessions *session.Manager
	bridge   client.GatewayBridge
	baseURL  string
	log      *logger.Logger
}

func NewCheckoutHandler(sessions *session.Manager, bridge client.GatewayBridge, baseURL string, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		bridge:   bridge,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log.Named("checkout"),
	}
}

func (h *CheckoutHandler) Page(c echo.Context) error {
	orderID := c.Param("orderID")
	attemptID := c.QueryParam("attempt")

	if _, err := h.owner(orderID, attemptID); err != nil {
		return err
	}
	opts, ok := h.bridge.Pending(orderID)
	if !ok {
		return apperror.New(apperror.CategoryNotFound, checkoutUnavailable)
	}

	var buf bytes.Buffer
	err := checkoutTemplate.Execute(&buf, checkoutPageData{
		Options:     opts,
		ScriptURL:   h.baseURL + "/checkout.js",
		CallbackURL: h.baseURL + "/api/checkout/" + url.PathEscape(orderID),
		AttemptID:   attemptID,
	})
	if err != nil {
		return fmt.Errorf("render checkout page: %w", err)
	}

	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (h *CheckoutHandler) Success(c echo.Context) error {
	var proof model.PaymentProof
	if err := c.Bind(&proof); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}
	return h.settle(c, func(orch *checkout.Orchestrator, orderID string) (checkout.State, error) {
		return orch.Succeed(c.Request().Context(), orderID, proof)
	})
}

func (h *CheckoutHandler) Dismiss(c echo.Context) error {
	return h.settle(c, func(orch *checkout.Orchestrator, orderID string) (checkout.State, error) {
		return orch.Dismiss(c.Request().Context(), orderID)
	})
}

func (h *CheckoutHandler) Failure(c echo.Context) error {
	var req dto.CheckoutFailureRequest
	if err := c.Bind(&req); err != nil {
		return apperror.New(apperror.CategoryInvalidRequest, "invalid req body")
	}
	return h.settle(c, func(orch *checkout.Orchestrator, orderID string) (checkout.State, error) {
		return orch.Fail(c.Request().Context(), orderID, req.Error)
	})
}

// settle delivers a widget callback to the attempt that opened the order and
// answers with the state it led to.
func (h *CheckoutHandler) settle(c echo.Context, deliver func(*checkout.Orchestrator, string) (checkout.State, error)) error {
	orderID := c.Param("orderID")

	orch, err := h.owner(orderID, c.QueryParam("attempt"))
	if err != nil {
		return err
	}

	state, err := deliver(orch, orderID)
	if err != nil && !errors.Is(err, checkout.ErrClosed) {
		h.log.Warnw("gateway callback failed", "order_id", orderID, "path", c.Path(), "error", err)
		if errors.Is(err, client.ErrCheckoutNotFound) {
			return apperror.Wrap(apperror.CategoryNotFound, checkoutUnavailable, err)
		}
		return err
	}

	return c.JSON(http.StatusOK, callbackResponse(state))
}

// owner finds the orchestrator of orderID. Unknown orders and a wrong
// attempt id look the same to the caller.
func (h *CheckoutHandler) owner(orderID, attemptID string) (*checkout.Orchestrator, error) {
	orch, err := h.sessions.ByOrder(orderID)
	if err != nil {
		return nil, apperror.Wrap(apperror.CategoryNotFound, checkoutUnavailable, err)
	}
	if attemptID == "" || !orch.Owns(orderID, attemptID) {
		return nil, apperror.New(apperror.CategoryNotFound, checkoutUnavailable)
	}
	return orch, nil
}

func callbackResponse(s checkout.State) dto.CallbackResponse {
	return dto.CallbackResponse{
		Step:     s.Step,
		Outcome:  s.Outcome,
		Message:  s.Message,
		Redirect: s.Redirect,
	}
}

// Script serves the cached gateway script, loading it on first use.
func (h *CheckoutHandler) Script(c echo.Context) error {
	script, ok := h.bridge.Script()
	if !ok {
		if !h.bridge.EnsureLoaded(c.Request().Context()) {
			return apperror.New(apperror.CategoryGatewayLoadFailure, apperror.MessageGatewayLoadFailed)
		}
		script, _ = h.bridge.Script()
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", script)
}
