package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harmonyhall/lessons-payments/internal/observability/metrics"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

var stripeTracer = otel.Tracer("lessons.internal.gateway.stripe")

const lessonsPaymentType = "lessons-payment"

// StripeGateway implements PaymentGateway against the Stripe API. Money-
// moving writes always carry an idempotency key; idempotent reads retry with
// exponential backoff on transient failures.
type StripeGateway struct {
	api           *client.API
	logger        *logging.Logger
	metrics       *metrics.GatewayMetrics
	retryAttempts uint64
	retryInterval time.Duration
}

// NewStripeGateway creates a gateway bound to the given secret key.
func NewStripeGateway(secretKey string, logger *logging.Logger, m *metrics.GatewayMetrics, retryAttempts int) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{
		api:           api,
		logger:        logger,
		metrics:       m,
		retryAttempts: uint64(retryAttempts),
		retryInterval: 250 * time.Millisecond,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, name, email string, metadata map[string]string) (*stripe.Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_customer")
	defer span.End()

	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return call(g, "create_customer", func() (*stripe.Customer, error) {
		return g.api.Customers.New(params)
	})
}

func (g *StripeGateway) ListCustomersByEmail(ctx context.Context, email string) ([]*stripe.Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_customers")
	defer span.End()

	return readRetry(g, ctx, "list_customers", func() ([]*stripe.Customer, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Context = ctx
		params.Limit = stripe.Int64(10)

		var out []*stripe.Customer
		iter := g.api.Customers.List(params)
		for iter.Next() {
			out = append(out, iter.Customer())
		}
		return out, iter.Err()
	})
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*stripe.Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_customer")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.customer_id", customerID))

	return readRetry(g, ctx, "get_customer", func() (*stripe.Customer, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return g.api.Customers.Get(customerID, params)
	})
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, customerID string, update CustomerUpdate) (*stripe.Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.update_customer")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.customer_id", customerID))

	params := &stripe.CustomerParams{
		Name:  update.Name,
		Email: update.Email,
	}
	if update.DefaultPaymentMethod != nil {
		params.InvoiceSettings = &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: update.DefaultPaymentMethod,
		}
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "update_customer", func() (*stripe.Customer, error) {
		return g.api.Customers.Update(customerID, params)
	})
}

func (g *StripeGateway) DeleteCustomer(ctx context.Context, customerID string) (*stripe.Customer, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.delete_customer")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.customer_id", customerID))

	params := &stripe.CustomerParams{}
	params.Context = ctx
	return call(g, "delete_customer", func() (*stripe.Customer, error) {
		return g.api.Customers.Del(customerID, params)
	})
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context) (*stripe.SetupIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_setup_intent")
	defer span.End()

	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "create_setup_intent", func() (*stripe.SetupIntent, error) {
		return g.api.SetupIntents.New(params)
	})
}

func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_payment_methods")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.customer_id", customerID))

	return readRetry(g, ctx, "list_payment_methods", func() ([]*stripe.PaymentMethod, error) {
		params := &stripe.PaymentMethodListParams{
			Customer: stripe.String(customerID),
			Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
		}
		params.Context = ctx

		var out []*stripe.PaymentMethod
		iter := g.api.PaymentMethods.List(params)
		for iter.Next() {
			out = append(out, iter.PaymentMethod())
		}
		return out, iter.Err()
	})
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*stripe.PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.attach_payment_method")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.customer_id", customerID),
		attribute.String("stripe.payment_method_id", paymentMethodID),
	)

	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "attach_payment_method", func() (*stripe.PaymentMethod, error) {
		return g.api.PaymentMethods.Attach(paymentMethodID, params)
	})
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.detach_payment_method")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_method_id", paymentMethodID))

	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	return call(g, "detach_payment_method", func() (*stripe.PaymentMethod, error) {
		return g.api.PaymentMethods.Detach(paymentMethodID, params)
	})
}

func (g *StripeGateway) GetPaymentMethod(ctx context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_payment_method")
	defer span.End()

	return readRetry(g, ctx, "get_payment_method", func() (*stripe.PaymentMethod, error) {
		params := &stripe.PaymentMethodParams{}
		params.Context = ctx
		return g.api.PaymentMethods.Get(paymentMethodID, params)
	})
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, spec PaymentIntentSpec) (*stripe.PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.customer_id", spec.CustomerID),
		attribute.Int64("lessons.amount_cents", spec.AmountCents),
	)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(spec.AmountCents),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		Customer:           stripe.String(spec.CustomerID),
		Description:        stripe.String(spec.Description),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	params.AddMetadata("type", lessonsPaymentType)
	for k, v := range spec.Metadata {
		params.AddMetadata(k, v)
	}
	return call(g, "create_payment_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.New(params)
	})
}

func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, paymentIntentID, paymentMethodID string) (*stripe.PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.confirm_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", paymentIntentID))

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "confirm_payment_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Confirm(paymentIntentID, params)
	})
}

func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, paymentIntentID string, amountCents int64) (*stripe.PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.capture_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.payment_intent_id", paymentIntentID),
		attribute.Int64("lessons.amount_cents", amountCents),
	)

	params := &stripe.PaymentIntentCaptureParams{}
	if amountCents > 0 {
		params.AmountToCapture = stripe.Int64(amountCents)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "capture_payment_intent", func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Capture(paymentIntentID, params)
	})
}

func (g *StripeGateway) ListPaymentIntents(ctx context.Context, query IntentQuery) ([]*stripe.PaymentIntent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_payment_intents")
	defer span.End()

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	return readRetry(g, ctx, "list_payment_intents", func() ([]*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentListParams{}
		if query.CustomerID != "" {
			params.Customer = stripe.String(query.CustomerID)
		}
		if !query.CreatedSince.IsZero() {
			params.CreatedRange = &stripe.RangeQueryParams{
				GreaterThanOrEqual: query.CreatedSince.Unix(),
			}
		}
		params.Context = ctx
		params.Limit = stripe.Int64(int64(limit))

		var out []*stripe.PaymentIntent
		iter := g.api.PaymentIntents.List(params)
		for iter.Next() && len(out) < limit {
			out = append(out, iter.PaymentIntent())
		}
		return out, iter.Err()
	})
}

func (g *StripeGateway) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64) (*stripe.Refund, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.payment_intent_id", paymentIntentID),
		attribute.Int64("lessons.amount_cents", amountCents),
	)

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(uuid.NewString())
	return call(g, "create_refund", func() (*stripe.Refund, error) {
		return g.api.Refunds.New(params)
	})
}

func (g *StripeGateway) ListCharges(ctx context.Context, createdSince time.Time, limit int) ([]*stripe.Charge, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.list_charges")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	return readRetry(g, ctx, "list_charges", func() ([]*stripe.Charge, error) {
		params := &stripe.ChargeListParams{}
		if !createdSince.IsZero() {
			params.CreatedRange = &stripe.RangeQueryParams{
				GreaterThanOrEqual: createdSince.Unix(),
			}
		}
		params.Context = ctx
		params.Limit = stripe.Int64(int64(limit))

		var out []*stripe.Charge
		iter := g.api.Charges.List(params)
		for iter.Next() && len(out) < limit {
			out = append(out, iter.Charge())
		}
		return out, iter.Err()
	})
}

func (g *StripeGateway) GetBalanceTransaction(ctx context.Context, balanceTransactionID string) (*stripe.BalanceTransaction, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_balance_transaction")
	defer span.End()

	return readRetry(g, ctx, "get_balance_transaction", func() (*stripe.BalanceTransaction, error) {
		params := &stripe.BalanceTransactionParams{}
		params.Context = ctx
		return g.api.BalanceTransactions.Get(balanceTransactionID, params)
	})
}

// call runs one gateway write and records its latency and outcome. Writes
// are never retried here; their idempotency keys make a caller-level retry
// safe instead.
func call[T any](g *StripeGateway, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	g.metrics.ObserveCall(operation, outcome(err), time.Since(start).Seconds())
	return v, err
}

// readRetry runs an idempotent read with bounded exponential backoff on
// transient failures. Processor-side rejections are permanent.
func readRetry[T any](g *StripeGateway, ctx context.Context, operation string, fn func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retryInterval

	var out T
	attempt := 0
	start := time.Now()
	err := backoff.Retry(func() error {
		attempt++
		v, err := fn()
		if err != nil {
			if !transient(err) {
				return backoff.Permanent(err)
			}
			if attempt > 1 {
				g.metrics.ObserveRetry(operation)
			}
			g.logger.Warn("gateway read failed, retrying",
				"operation", operation, "attempt", attempt, "error", err)
			return err
		}
		out = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, g.retryAttempts), ctx))
	g.metrics.ObserveCall(operation, outcome(err), time.Since(start).Seconds())
	return out, err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// transient reports whether a gateway error is worth retrying: network
// failures, rate limits, and processor 5xx. Everything the processor
// rejected outright is permanent.
func transient(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
