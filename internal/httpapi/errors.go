package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
)

// Kind classifies an operation failure for HTTP mapping.
type Kind int

const (
	KindUpstream Kind = iota
	KindConflict
	KindNotFound
	KindDeclined
	KindValidation
)

// Error is the structured failure every operation surfaces at its boundary.
// Code carries the processor's error code when one exists.
type Error struct {
	Kind            Kind
	Code            string
	Message         string
	PaymentIntentID string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindDeclined, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Declined(code, message string) *Error {
	return &Error{Kind: KindDeclined, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Upstream(code, message string) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message}
}

// FromGateway translates a processor error into the local taxonomy. Stripe
// errors keep their code and message; anything else becomes an upstream
// failure. If the processor created a payment intent before failing, its id
// rides along so callers can inspect or cancel it.
func FromGateway(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &Error{Kind: KindUpstream, Code: "upstream_error", Message: err.Error()}
	}

	mapped := &Error{
		Code:    string(stripeErr.Code),
		Message: stripeErr.Msg,
	}
	if mapped.Code == "" {
		mapped.Code = string(stripeErr.Type)
	}
	if stripeErr.PaymentIntent != nil {
		mapped.PaymentIntentID = stripeErr.PaymentIntent.ID
	}

	switch {
	case stripeErr.Code == stripe.ErrorCodeResourceMissing,
		stripeErr.HTTPStatusCode == http.StatusNotFound:
		mapped.Kind = KindNotFound
	case stripeErr.Type == stripe.ErrorTypeCard,
		stripeErr.Code == stripe.ErrorCodeCardDeclined,
		stripeErr.Code == stripe.ErrorCodeExpiredCard,
		stripeErr.Code == stripe.ErrorCodeIncorrectCVC,
		stripeErr.Code == stripe.ErrorCodePaymentIntentAuthenticationFailure,
		stripeErr.Code == stripe.ErrorCodeSetupIntentAuthenticationFailure:
		mapped.Kind = KindDeclined
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
		mapped.Kind = KindValidation
	default:
		mapped.Kind = KindUpstream
	}
	return mapped
}

// WithIntentID returns a copy of the error carrying the payment intent id,
// for failures that happen after an intent was created.
func (e *Error) WithIntentID(id string) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	if clone.PaymentIntentID == "" {
		clone.PaymentIntentID = id
	}
	return &clone
}
