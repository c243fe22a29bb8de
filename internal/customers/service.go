package customers

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"golang.org/x/sync/errgroup"

	"github.com/harmonyhall/lessons-payments/internal/gateway"
	"github.com/harmonyhall/lessons-payments/internal/httpapi"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

// Service manages customers and their stored payment methods. Every entity
// lives in the payment processor; the service only orchestrates calls.
type Service struct {
	gw     gateway.PaymentGateway
	logger *logging.Logger
}

func NewService(gw gateway.PaymentGateway, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{gw: gw, logger: logger}
}

// Create registers a new customer. Email uniqueness is enforced by a lookup
// first, not by a store constraint.
func (s *Service) Create(ctx context.Context, name, email string, metadata map[string]string) (string, error) {
	existing, err := s.gw.ListCustomersByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("customers: lookup by email: %w", err)
	}
	if len(existing) > 0 {
		return "", httpapi.Conflict("email_in_use", fmt.Sprintf("a customer with email %s already exists", email))
	}
	created, err := s.gw.CreateCustomer(ctx, name, email, metadata)
	if err != nil {
		return "", fmt.Errorf("customers: create: %w", err)
	}
	s.logger.Info("customer created", "customer_id", created.ID)
	return created.ID, nil
}

// BeginPaymentMethodSetup starts a setup intent and returns its client
// secret. Card data never touches this server; the front end confirms the
// intent directly with the processor.
func (s *Service) BeginPaymentMethodSetup(ctx context.Context) (string, error) {
	intent, err := s.gw.CreateSetupIntent(ctx)
	if err != nil {
		return "", fmt.Errorf("customers: create setup intent: %w", err)
	}
	return intent.ClientSecret, nil
}

// CardSummary is the displayable slice of a stored card.
type CardSummary struct {
	Brand    string
	LastFour string
}

// AttachPaymentMethod replaces the customer's stored payment methods with
// the given one and makes it the invoicing default. Stale methods are
// detached concurrently, best effort: one failed detach does not abort the
// others, and nothing is rolled back. A crash mid-sequence can leave the
// customer with zero or two methods until the next attach.
func (s *Service) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*CardSummary, error) {
	if _, err := s.gw.GetCustomer(ctx, customerID); err != nil {
		return nil, fmt.Errorf("customers: resolve %s: %w", customerID, err)
	}

	stale, err := s.gw.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customers: list payment methods: %w", err)
	}
	if len(stale) > 0 {
		ids := make([]string, len(stale))
		for i, pm := range stale {
			ids[i] = pm.ID
		}
		// Logged before detaching so an operator can re-attach by hand if
		// the sequence dies between detach and attach.
		s.logger.Info("detaching stale payment methods",
			"customer_id", customerID, "payment_method_ids", ids)

		g, gctx := errgroup.WithContext(ctx)
		for _, pm := range stale {
			pm := pm
			g.Go(func() error {
				if _, err := s.gw.DetachPaymentMethod(gctx, pm.ID); err != nil {
					s.logger.Warn("detach failed",
						"customer_id", customerID, "payment_method_id", pm.ID, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	if _, err := s.gw.AttachPaymentMethod(ctx, paymentMethodID, customerID); err != nil {
		return nil, fmt.Errorf("customers: attach %s: %w", paymentMethodID, err)
	}
	if _, err := s.gw.UpdateCustomer(ctx, customerID, gateway.CustomerUpdate{
		DefaultPaymentMethod: &paymentMethodID,
	}); err != nil {
		return nil, fmt.Errorf("customers: set default payment method: %w", err)
	}

	pm, err := s.gw.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("customers: retrieve payment method: %w", err)
	}
	summary := &CardSummary{}
	if pm.Card != nil {
		summary.Brand = string(pm.Card.Brand)
		summary.LastFour = pm.Card.Last4
	}
	return summary, nil
}

// Profile is the persisted identity after an update, as normalized by the
// processor.
type Profile struct {
	Name  string
	Email string
}

// UpdateProfile changes the customer's name and email. Conflicts when the
// email already belongs to a different customer.
func (s *Service) UpdateProfile(ctx context.Context, customerID, name, email string) (*Profile, error) {
	if email != "" {
		existing, err := s.gw.ListCustomersByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("customers: lookup by email: %w", err)
		}
		for _, c := range existing {
			if c.ID != customerID {
				return nil, httpapi.Conflict("email_in_use", "customer email already exists")
			}
		}
	}

	update := gateway.CustomerUpdate{}
	if name != "" {
		update.Name = &name
	}
	if email != "" {
		update.Email = &email
	}
	if _, err := s.gw.UpdateCustomer(ctx, customerID, update); err != nil {
		return nil, fmt.Errorf("customers: update %s: %w", customerID, err)
	}

	persisted, err := s.gw.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customers: retrieve %s: %w", customerID, err)
	}
	return &Profile{Name: persisted.Name, Email: persisted.Email}, nil
}

// MethodSummary pairs a customer's identity with their first stored card.
type MethodSummary struct {
	CustomerID string
	Name       string
	Email      string
	Brand      string
	LastFour   string
	ExpMonth   int64
	ExpYear    int64
}

// PaymentMethodSummary returns the first card on file, or NotFound when the
// customer has none.
func (s *Service) PaymentMethodSummary(ctx context.Context, customerID string) (*MethodSummary, error) {
	methods, err := s.gw.ListPaymentMethods(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customers: list payment methods: %w", err)
	}
	var card *stripe.PaymentMethodCard
	for _, pm := range methods {
		if pm.Card != nil {
			card = pm.Card
			break
		}
	}
	if card == nil {
		return nil, httpapi.NotFound("no_payment_method", "No payment methods found for this customer.")
	}

	cust, err := s.gw.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("customers: retrieve %s: %w", customerID, err)
	}
	return &MethodSummary{
		CustomerID: cust.ID,
		Name:       cust.Name,
		Email:      cust.Email,
		Brand:      string(card.Brand),
		LastFour:   card.Last4,
		ExpMonth:   card.ExpMonth,
		ExpYear:    card.ExpYear,
	}, nil
}

// DeleteResult reports either a completed deletion or the uncaptured intents
// blocking it.
type DeleteResult struct {
	Deleted                  bool
	UncapturedPaymentIntents []string
}

// Delete removes the customer unless any of their payment intents is still
// awaiting capture. Blocked deletions return the intent ids; capturing or
// canceling them is a separate call the manager makes deliberately.
func (s *Service) Delete(ctx context.Context, customerID string) (*DeleteResult, error) {
	intents, err := s.gw.ListPaymentIntents(ctx, gateway.IntentQuery{
		CustomerID: customerID,
		Limit:      100,
	})
	if err != nil {
		return nil, fmt.Errorf("customers: list payment intents: %w", err)
	}

	var uncaptured []string
	for _, pi := range intents {
		if pi.Status == stripe.PaymentIntentStatusRequiresCapture {
			uncaptured = append(uncaptured, pi.ID)
		}
	}
	if len(uncaptured) > 0 {
		return &DeleteResult{UncapturedPaymentIntents: uncaptured}, nil
	}

	if _, err := s.gw.DeleteCustomer(ctx, customerID); err != nil {
		return nil, fmt.Errorf("customers: delete %s: %w", customerID, err)
	}
	s.logger.Info("customer deleted", "customer_id", customerID)
	return &DeleteResult{Deleted: true}, nil
}
