// Package gatewaytest provides an in-memory PaymentGateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/harmonyhall/lessons-payments/internal/gateway"
)

// Fake is an in-memory payment gateway. It mimics the processor's state
// machine closely enough for orchestration tests: manual-capture intents
// move created -> requires_capture -> succeeded, captures produce charges,
// and lookups for unknown ids fail the way the real API does.
type Fake struct {
	mu sync.Mutex

	customers      map[string]*stripe.Customer
	methods        map[string]*stripe.PaymentMethod
	methodOrder    []string
	intents        map[string]*stripe.PaymentIntent
	intentOrder    []string
	charges        []*stripe.Charge
	balanceTxns    map[string]*stripe.BalanceTransaction
	refunds        map[string]*stripe.Refund
	seq            int

	// DetachErrs makes DetachPaymentMethod fail for specific method ids.
	DetachErrs map[string]error
	// ConfirmErr makes every ConfirmPaymentIntent fail with this error,
	// leaving the intent in requires_payment_method.
	ConfirmErr *stripe.Error

	// Detached records every detach attempt, including failed ones.
	Detached []string
}

var _ gateway.PaymentGateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		customers:   map[string]*stripe.Customer{},
		methods:     map[string]*stripe.PaymentMethod{},
		intents:     map[string]*stripe.PaymentIntent{},
		balanceTxns: map[string]*stripe.BalanceTransaction{},
		refunds:     map[string]*stripe.Refund{},
		DetachErrs:  map[string]error{},
	}
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%04d", prefix, f.seq)
}

func notFoundErr(msg string) *stripe.Error {
	return &stripe.Error{
		Code:           stripe.ErrorCodeResourceMissing,
		Msg:            msg,
		HTTPStatusCode: http.StatusNotFound,
		Type:           stripe.ErrorTypeInvalidRequest,
	}
}

func invalidErr(msg string) *stripe.Error {
	return &stripe.Error{
		Msg:            msg,
		HTTPStatusCode: http.StatusBadRequest,
		Type:           stripe.ErrorTypeInvalidRequest,
	}
}

// SeedCustomer registers a customer and returns its id.
func (f *Fake) SeedCustomer(name, email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("cus")
	f.customers[id] = &stripe.Customer{ID: id, Name: name, Email: email}
	return id
}

// SeedCardMethod registers a card payment method, attached to customerID
// when non-empty.
func (f *Fake) SeedCardMethod(customerID, brand, last4 string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("pm")
	pm := &stripe.PaymentMethod{
		ID:   id,
		Type: stripe.PaymentMethodTypeCard,
		Card: &stripe.PaymentMethodCard{
			Brand:    stripe.PaymentMethodCardBrand(brand),
			Last4:    last4,
			ExpMonth: 12,
			ExpYear:  2030,
		},
	}
	if customerID != "" {
		pm.Customer = &stripe.Customer{ID: customerID}
	}
	f.methods[id] = pm
	f.methodOrder = append(f.methodOrder, id)
	return id
}

// SeedCharge registers a charge; balanceTxnID may be empty for charges with
// no settlement record.
func (f *Fake) SeedCharge(amount int64, status stripe.ChargeStatus, balanceTxnID string, created time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("ch")
	ch := &stripe.Charge{ID: id, Amount: amount, Status: status, Created: created.Unix()}
	if balanceTxnID != "" {
		ch.BalanceTransaction = &stripe.BalanceTransaction{ID: balanceTxnID}
	}
	f.charges = append(f.charges, ch)
	return id
}

// SeedBalanceTransaction registers a settlement record.
func (f *Fake) SeedBalanceTransaction(id string, fee, net int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceTxns[id] = &stripe.BalanceTransaction{ID: id, Fee: fee, Net: net}
}

// SeedIntent registers a payment intent in an arbitrary state.
func (f *Fake) SeedIntent(customerID string, amount int64, status stripe.PaymentIntentStatus, created time.Time, lastErr *stripe.Error) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("pi")
	pi := &stripe.PaymentIntent{
		ID:               id,
		Amount:           amount,
		Status:           status,
		Created:          created.Unix(),
		Customer:         &stripe.Customer{ID: customerID},
		LastPaymentError: lastErr,
	}
	f.intents[id] = pi
	f.intentOrder = append(f.intentOrder, id)
	return id
}

// RefundByID returns a stored refund for assertions.
func (f *Fake) RefundByID(id string) *stripe.Refund {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds[id]
}

// Intent returns the stored intent for assertions.
func (f *Fake) Intent(id string) *stripe.PaymentIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intents[id]
}

func (f *Fake) CreateCustomer(_ context.Context, name, email string, metadata map[string]string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("cus")
	c := &stripe.Customer{ID: id, Name: name, Email: email, Metadata: metadata}
	f.customers[id] = c
	return c, nil
}

func (f *Fake) ListCustomersByEmail(_ context.Context, email string) ([]*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*stripe.Customer
	for _, c := range f.customers {
		if c.Email == email {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) GetCustomer(_ context.Context, customerID string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such customer: '%s'", customerID))
	}
	return c, nil
}

func (f *Fake) UpdateCustomer(_ context.Context, customerID string, update gateway.CustomerUpdate) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such customer: '%s'", customerID))
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Email != nil {
		c.Email = *update.Email
	}
	if update.DefaultPaymentMethod != nil {
		c.InvoiceSettings = &stripe.CustomerInvoiceSettings{
			DefaultPaymentMethod: &stripe.PaymentMethod{ID: *update.DefaultPaymentMethod},
		}
	}
	return c, nil
}

func (f *Fake) DeleteCustomer(_ context.Context, customerID string) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.customers[customerID]; !ok {
		return nil, notFoundErr(fmt.Sprintf("No such customer: '%s'", customerID))
	}
	delete(f.customers, customerID)
	return &stripe.Customer{ID: customerID, Deleted: true}, nil
}

func (f *Fake) CreateSetupIntent(_ context.Context) (*stripe.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("seti")
	return &stripe.SetupIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *Fake) ListPaymentMethods(_ context.Context, customerID string) ([]*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*stripe.PaymentMethod
	for _, id := range f.methodOrder {
		pm := f.methods[id]
		if pm != nil && pm.Customer != nil && pm.Customer.ID == customerID {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (f *Fake) AttachPaymentMethod(_ context.Context, paymentMethodID, customerID string) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pm, ok := f.methods[paymentMethodID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_method: '%s'", paymentMethodID))
	}
	pm.Customer = &stripe.Customer{ID: customerID}
	return pm, nil
}

func (f *Fake) DetachPaymentMethod(_ context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Detached = append(f.Detached, paymentMethodID)
	if err, ok := f.DetachErrs[paymentMethodID]; ok {
		return nil, err
	}
	pm, ok := f.methods[paymentMethodID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_method: '%s'", paymentMethodID))
	}
	pm.Customer = nil
	return pm, nil
}

func (f *Fake) GetPaymentMethod(_ context.Context, paymentMethodID string) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pm, ok := f.methods[paymentMethodID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_method: '%s'", paymentMethodID))
	}
	return pm, nil
}

func (f *Fake) CreatePaymentIntent(_ context.Context, spec gateway.PaymentIntentSpec) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.customers[spec.CustomerID]; !ok {
		return nil, notFoundErr(fmt.Sprintf("No such customer: '%s'", spec.CustomerID))
	}
	id := f.nextID("pi")
	pi := &stripe.PaymentIntent{
		ID:          id,
		Amount:      spec.AmountCents,
		Description: spec.Description,
		Status:      stripe.PaymentIntentStatusRequiresConfirmation,
		Created:     time.Now().Unix(),
		Customer:    &stripe.Customer{ID: spec.CustomerID},
		Metadata:    spec.Metadata,
	}
	f.intents[id] = pi
	f.intentOrder = append(f.intentOrder, id)
	return pi, nil
}

func (f *Fake) ConfirmPaymentIntent(_ context.Context, paymentIntentID, paymentMethodID string) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[paymentIntentID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_intent: '%s'", paymentIntentID))
	}
	if f.ConfirmErr != nil {
		confirmErr := *f.ConfirmErr
		confirmErr.PaymentIntent = pi
		pi.Status = stripe.PaymentIntentStatusRequiresPaymentMethod
		pi.LastPaymentError = &confirmErr
		return nil, &confirmErr
	}
	pi.Status = stripe.PaymentIntentStatusRequiresCapture
	pi.PaymentMethod = &stripe.PaymentMethod{ID: paymentMethodID}
	return pi, nil
}

func (f *Fake) CapturePaymentIntent(_ context.Context, paymentIntentID string, amountCents int64) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[paymentIntentID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_intent: '%s'", paymentIntentID))
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, invalidErr(fmt.Sprintf("PaymentIntent %s has status %s and cannot be captured", paymentIntentID, pi.Status))
	}
	captured := pi.Amount
	if amountCents > 0 {
		if amountCents > pi.Amount {
			return nil, invalidErr("amount_to_capture exceeds the authorized amount")
		}
		captured = amountCents
	}
	pi.Status = stripe.PaymentIntentStatusSucceeded
	pi.AmountReceived = captured
	f.charges = append(f.charges, &stripe.Charge{
		ID:      f.nextID("ch"),
		Amount:  captured,
		Status:  stripe.ChargeStatusSucceeded,
		Created: time.Now().Unix(),
	})
	return pi, nil
}

func (f *Fake) ListPaymentIntents(_ context.Context, query gateway.IntentQuery) ([]*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []*stripe.PaymentIntent
	for _, id := range f.intentOrder {
		pi := f.intents[id]
		if query.CustomerID != "" && (pi.Customer == nil || pi.Customer.ID != query.CustomerID) {
			continue
		}
		if !query.CreatedSince.IsZero() && pi.Created < query.CreatedSince.Unix() {
			continue
		}
		out = append(out, pi)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) CreateRefund(_ context.Context, paymentIntentID string, amountCents int64) (*stripe.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pi, ok := f.intents[paymentIntentID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such payment_intent: '%s'", paymentIntentID))
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, invalidErr(fmt.Sprintf("PaymentIntent %s has not been captured", paymentIntentID))
	}
	amount := pi.AmountReceived
	if amountCents > 0 {
		if amountCents > pi.AmountReceived {
			return nil, invalidErr("refund amount exceeds the captured amount")
		}
		amount = amountCents
	}
	id := f.nextID("re")
	refund := &stripe.Refund{ID: id, Amount: amount, Status: stripe.RefundStatusSucceeded}
	f.refunds[id] = refund
	return refund, nil
}

func (f *Fake) ListCharges(_ context.Context, createdSince time.Time, limit int) ([]*stripe.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []*stripe.Charge
	for _, ch := range f.charges {
		if !createdSince.IsZero() && ch.Created < createdSince.Unix() {
			continue
		}
		out = append(out, ch)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) GetBalanceTransaction(_ context.Context, balanceTransactionID string) (*stripe.BalanceTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.balanceTxns[balanceTransactionID]
	if !ok {
		return nil, notFoundErr(fmt.Sprintf("No such balance_transaction: '%s'", balanceTransactionID))
	}
	return txn, nil
}
