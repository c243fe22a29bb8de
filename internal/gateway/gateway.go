package gateway

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// PaymentGateway abstracts the payment processor operations the app layer
// composes against. The processor's state is the source of truth for every
// entity; implementations hold no state of their own.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, name, email string, metadata map[string]string) (*stripe.Customer, error)
	ListCustomersByEmail(ctx context.Context, email string) ([]*stripe.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) (*stripe.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) (*stripe.Customer, error)

	CreateSetupIntent(ctx context.Context) (*stripe.SetupIntent, error)

	ListPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*stripe.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error)

	CreatePaymentIntent(ctx context.Context, spec PaymentIntentSpec) (*stripe.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, paymentIntentID, paymentMethodID string) (*stripe.PaymentIntent, error)
	// CapturePaymentIntent captures the full authorized amount when
	// amountCents is zero, otherwise exactly amountCents.
	CapturePaymentIntent(ctx context.Context, paymentIntentID string, amountCents int64) (*stripe.PaymentIntent, error)
	ListPaymentIntents(ctx context.Context, query IntentQuery) ([]*stripe.PaymentIntent, error)

	// CreateRefund refunds the full amount when amountCents is zero.
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*stripe.Refund, error)

	ListCharges(ctx context.Context, createdSince time.Time, limit int) ([]*stripe.Charge, error)
	GetBalanceTransaction(ctx context.Context, balanceTransactionID string) (*stripe.BalanceTransaction, error)
}

// CustomerUpdate carries the mutable customer fields. Nil fields are left
// untouched by the processor.
type CustomerUpdate struct {
	Name                 *string
	Email                *string
	DefaultPaymentMethod *string
}

// PaymentIntentSpec describes a manual-capture charge to authorize.
type PaymentIntentSpec struct {
	CustomerID  string
	AmountCents int64
	Description string
	Metadata    map[string]string
}

// IntentQuery filters a payment intent listing. Zero values are omitted.
type IntentQuery struct {
	CustomerID   string
	CreatedSince time.Time
	Limit        int
}
