package lessons

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stripe/stripe-go/v82"
	"golang.org/x/sync/errgroup"

	"github.com/harmonyhall/lessons-payments/internal/gateway"
	"github.com/harmonyhall/lessons-payments/internal/httpapi"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

const genericDeclineCode = "generic_decline"

// failedIntentStatuses is the set the failed-payments report treats as a
// failure. requires_capture is a successful authorization awaiting capture
// and is deliberately not in the set.
var failedIntentStatuses = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusCanceled:              true,
}

// Service drives a lesson payment through authorize -> capture -> refund and
// produces the reporting views over the processor's records.
type Service struct {
	gw              gateway.PaymentGateway
	logger          *logging.Logger
	chargePageLimit int
	feeConcurrency  int
}

func NewService(gw gateway.PaymentGateway, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		gw:              gw,
		logger:          logger,
		chargePageLimit: 100,
		feeConcurrency:  8,
	}
}

// WithChargePageLimit bounds how many records the reporting operations pull.
func (s *Service) WithChargePageLimit(limit int) *Service {
	if limit > 0 {
		s.chargePageLimit = limit
	}
	return s
}

// WithFeeLookupConcurrency bounds the parallel settlement lookups in the
// revenue report.
func (s *Service) WithFeeLookupConcurrency(n int) *Service {
	if n > 0 {
		s.feeConcurrency = n
	}
	return s
}

// Authorize places a manual-capture hold for a lesson: the intent is created
// and immediately confirmed with the customer's card on file. Failures after
// the intent exists carry its id so the caller can inspect or cancel it.
func (s *Service) Authorize(ctx context.Context, customerID string, amountCents int64, description string) (*stripe.PaymentIntent, error) {
	if amountCents <= 0 {
		return nil, httpapi.Validation("invalid_amount", "amount must be a positive number of cents")
	}
	if customerID == "" {
		return nil, httpapi.Validation("missing_field", "customer_id is required")
	}

	intent, err := s.gw.CreatePaymentIntent(ctx, gateway.PaymentIntentSpec{
		CustomerID:  customerID,
		AmountCents: amountCents,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("lessons: create payment intent: %w", err)
	}

	methods, err := s.gw.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, httpapi.FromGateway(err).WithIntentID(intent.ID)
	}
	if len(methods) == 0 {
		return nil, httpapi.Declined("no_payment_method",
			fmt.Sprintf("no payment methods found for %s", customerID)).WithIntentID(intent.ID)
	}

	confirmed, err := s.gw.ConfirmPaymentIntent(ctx, intent.ID, methods[0].ID)
	if err != nil {
		s.logger.Warn("lesson authorization declined",
			"customer_id", customerID, "payment_intent_id", intent.ID, "error", err)
		return nil, httpapi.FromGateway(err).WithIntentID(intent.ID)
	}
	s.logger.Info("lesson payment authorized",
		"customer_id", customerID, "payment_intent_id", confirmed.ID, "amount_cents", amountCents)
	return confirmed, nil
}

// Capture collects a previously authorized payment. amountCents zero means
// the full authorized amount; an amount above it is rejected by the
// processor and surfaced as-is, never pre-validated here.
func (s *Service) Capture(ctx context.Context, paymentIntentID string, amountCents int64) (*stripe.PaymentIntent, error) {
	if paymentIntentID == "" {
		return nil, httpapi.Validation("missing_field", "payment_intent_id is required")
	}
	if amountCents < 0 {
		return nil, httpapi.Validation("invalid_amount", "amount must not be negative")
	}
	captured, err := s.gw.CapturePaymentIntent(ctx, paymentIntentID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("lessons: capture %s: %w", paymentIntentID, err)
	}
	s.logger.Info("lesson payment captured",
		"payment_intent_id", captured.ID, "amount_cents", captured.AmountReceived)
	return captured, nil
}

// Refund returns money for a captured lesson, fully when amountCents is
// zero. The refund reason is always customer-requested.
func (s *Service) Refund(ctx context.Context, paymentIntentID string, amountCents int64) (string, error) {
	if paymentIntentID == "" {
		return "", httpapi.Validation("missing_field", "payment_intent_id is required")
	}
	if amountCents < 0 {
		return "", httpapi.Validation("invalid_amount", "amount must not be negative")
	}
	refund, err := s.gw.CreateRefund(ctx, paymentIntentID, amountCents)
	if err != nil {
		return "", fmt.Errorf("lessons: refund %s: %w", paymentIntentID, err)
	}
	s.logger.Info("lesson payment refunded",
		"payment_intent_id", paymentIntentID, "refund_id", refund.ID, "amount_cents", refund.Amount)
	return refund.ID, nil
}

// RevenueReport aggregates lesson revenue over a trailing window, in cents.
type RevenueReport struct {
	PaymentTotal int64 `json:"payment_total"`
	FeeTotal     int64 `json:"fee_total"`
	NetTotal     int64 `json:"net_total"`
}

// RevenueWindow sums gross revenue and processor fees over succeeded charges
// in the trailing window. Charges without a settlement record count as zero
// fee. Settlement lookups fan out with bounded concurrency.
func (s *Service) RevenueWindow(ctx context.Context, window time.Duration) (*RevenueReport, error) {
	since := time.Now().Add(-window)
	charges, err := s.gw.ListCharges(ctx, since, s.chargePageLimit)
	if err != nil {
		return nil, fmt.Errorf("lessons: list charges: %w", err)
	}

	var gross int64
	var fees atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.feeConcurrency)
	for _, ch := range charges {
		if ch.Status != stripe.ChargeStatusSucceeded {
			continue
		}
		gross += ch.Amount
		if ch.BalanceTransaction == nil || ch.BalanceTransaction.ID == "" {
			continue
		}
		txnID := ch.BalanceTransaction.ID
		g.Go(func() error {
			txn, err := s.gw.GetBalanceTransaction(gctx, txnID)
			if err != nil {
				return fmt.Errorf("lessons: balance transaction %s: %w", txnID, err)
			}
			fees.Add(txn.Fee)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	feeTotal := fees.Load()
	return &RevenueReport{
		PaymentTotal: gross,
		FeeTotal:     feeTotal,
		NetTotal:     gross - feeTotal,
	}, nil
}

// FailedPayment pairs a customer whose recent payment attempt failed with
// the card still on file, so they can be prompted to replace it.
type FailedPayment struct {
	Customer struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer"`
	PaymentIntent struct {
		Created     int64  `json:"created"`
		Description string `json:"description"`
		Status      string `json:"status"`
		Error       string `json:"error"`
	} `json:"payment_intent"`
	PaymentMethod struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"payment_method"`
}

// FailedPayments scans recent payment intents for declined attempts and
// resolves each to the owning customer and their most recent stored card.
func (s *Service) FailedPayments(ctx context.Context, window time.Duration) ([]FailedPayment, error) {
	since := time.Now().Add(-window)
	intents, err := s.gw.ListPaymentIntents(ctx, gateway.IntentQuery{
		CreatedSince: since,
		Limit:        s.chargePageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("lessons: list payment intents: %w", err)
	}

	out := []FailedPayment{}
	for _, pi := range intents {
		if !failedIntentStatuses[pi.Status] {
			continue
		}
		if pi.Customer == nil || pi.Customer.ID == "" {
			s.logger.Warn("failed intent has no customer", "payment_intent_id", pi.ID)
			continue
		}

		cust, err := s.gw.GetCustomer(ctx, pi.Customer.ID)
		if err != nil {
			return nil, fmt.Errorf("lessons: retrieve customer %s: %w", pi.Customer.ID, err)
		}
		methods, err := s.gw.ListPaymentMethods(ctx, pi.Customer.ID)
		if err != nil {
			return nil, fmt.Errorf("lessons: list payment methods for %s: %w", pi.Customer.ID, err)
		}

		var record FailedPayment
		record.Customer.ID = cust.ID
		record.Customer.Name = cust.Name
		record.Customer.Email = cust.Email
		record.PaymentIntent.Created = pi.Created
		record.PaymentIntent.Description = pi.Description
		record.PaymentIntent.Status = "failed"
		record.PaymentIntent.Error = genericDeclineCode
		if pi.LastPaymentError != nil && pi.LastPaymentError.Code != "" {
			record.PaymentIntent.Error = string(pi.LastPaymentError.Code)
		}
		if len(methods) > 0 && methods[0].Card != nil {
			record.PaymentMethod.Brand = string(methods[0].Card.Brand)
			record.PaymentMethod.Last4 = methods[0].Card.Last4
		}
		out = append(out, record)
	}
	return out, nil
}
