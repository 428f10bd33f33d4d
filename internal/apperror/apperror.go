package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type Category string

const (
	CategoryUnknown              Category = "UNKNOWN"
	CategoryInvalidRequest       Category = "INVALID_REQUEST"
	CategoryAuthExpired          Category = "AUTH_EXPIRED"
	CategoryInsufficientBalance  Category = "INSUFFICIENT_BALANCE"
	CategorySubscriptionRequired Category = "SUBSCRIPTION_REQUIRED"
	CategoryNotFound             Category = "NOT_FOUND"
	CategoryGatewayLoadFailure   Category = "GATEWAY_LOAD_FAILURE"
	CategoryOrderFailure         Category = "ORDER_FAILURE"
	CategoryPaymentFailed        Category = "PAYMENT_FAILED"
	CategoryVerificationFailure  Category = "VERIFICATION_FAILURE"
	CategoryCheckoutInProgress   Category = "CHECKOUT_IN_PROGRESS"
)

const (
	MessageVerificationFailed = "Payment verification failed. Please contact support."
	MessageGatewayLoadFailed  = "Failed to load payment gateway"
	MessageSessionExpired     = "Your session has expired. Please log in again."
	MessageNoLongerAvailable  = "This item is no longer available."
	MessageInsufficient       = "Insufficient balance"
)

// insufficientMarkers are the upstream message fragments that mean the user
// ran out of coins.
var insufficientMarkers = []string{
	"insufficient balance",
	"insufficient coins",
	"failed to deduct coins",
}

type Error struct {
	Category Category
	Message  string
	// Status is the upstream HTTP status, zero when the error did not come
	// from the backend.
	Status int

	RedirectToLogin     bool
	RedirectToDashboard bool
	RedirectToWallet    bool

	Err error
}

func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

func Wrap(category Category, message string, err error) *Error {
	return &Error{Category: category, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Category) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Category) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	return e.Category.HTTPStatus()
}

func (c Category) HTTPStatus() int {
	switch c {
	case CategoryInvalidRequest, CategoryInsufficientBalance:
		return http.StatusBadRequest
	case CategoryAuthExpired:
		return http.StatusUnauthorized
	case CategorySubscriptionRequired:
		return http.StatusPaymentRequired
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryCheckoutInProgress:
		return http.StatusConflict
	case CategoryGatewayLoadFailure:
		return http.StatusServiceUnavailable
	case CategoryOrderFailure, CategoryPaymentFailed, CategoryVerificationFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// CategoryOf returns the category of the first *Error in err's chain.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryUnknown
}

// MessageOf returns the user-facing message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}

func IsInsufficientBalanceMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range insufficientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

type responseBody struct {
	Message              string `json:"message"`
	InsufficientCoins    bool   `json:"insufficientCoins"`
	Balance              string `json:"balance"`
	SubscriptionRequired bool   `json:"subscriptionRequired"`
}

// FromResponse classifies a non-2xx backend response.
func FromResponse(status int, body []byte) *Error {
	var rb responseBody
	// bodies that are not JSON still classify by status
	_ = json.Unmarshal(body, &rb)

	e := &Error{Status: status, Message: rb.Message}

	switch {
	case status == http.StatusUnauthorized:
		e.Category = CategoryAuthExpired
		e.Message = MessageSessionExpired
		e.RedirectToLogin = true
	case status == http.StatusBadRequest &&
		(rb.InsufficientCoins || rb.Balance == "too low" || IsInsufficientBalanceMessage(rb.Message)):
		e.Category = CategoryInsufficientBalance
		if e.Message == "" {
			e.Message = MessageInsufficient
		}
		e.RedirectToDashboard = true
		e.RedirectToWallet = true
	case rb.SubscriptionRequired:
		e.Category = CategorySubscriptionRequired
		if e.Message == "" {
			e.Message = "An active subscription is required"
		}
	case status == http.StatusNotFound:
		e.Category = CategoryNotFound
		if e.Message == "" {
			e.Message = MessageNoLongerAvailable
		}
	default:
		e.Category = CategoryUnknown
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}
	return e
}
