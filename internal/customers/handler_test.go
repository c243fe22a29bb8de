package customers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/harmonyhall/lessons-payments/internal/gateway/gatewaytest"
)

func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/create-client", h.CreateClient)
	r.Get("/create-setup-intent", h.CreateSetupIntent)
	r.Post("/lessons", h.AttachPaymentMethod)
	r.Post("/account-update/{customerID}", h.AccountUpdate)
	r.Get("/payment-method/{customerID}", h.PaymentMethodSummary)
	r.Post("/delete-account/{customerID}", h.DeleteAccount)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateClientReturnsCustomerID(t *testing.T) {
	fake := gatewaytest.NewFake()
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/create-client", map[string]string{
		"name":        "Ada Lovelace",
		"email":       "ada@example.com",
		"firstLesson": "2026-09-01",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["customerId"])
}

func TestCreateClientDuplicateEmailReturns409(t *testing.T) {
	fake := gatewaytest.NewFake()
	fake.SeedCustomer("Ada", "ada@example.com")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/create-client", map[string]string{
		"name":  "Someone Else",
		"email": "ada@example.com",
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.JSONEq(t,
		`{"error":{"code":"email_in_use","message":"a customer with email ada@example.com already exists"}}`,
		rr.Body.String())
}

func TestCreateClientMissingEmailReturns400(t *testing.T) {
	router := testRouter(NewHandler(NewService(gatewaytest.NewFake(), nil), nil))

	rr := postJSON(t, router, "/create-client", map[string]string{"name": "No Email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateSetupIntentRoute(t *testing.T) {
	router := testRouter(NewHandler(NewService(gatewaytest.NewFake(), nil), nil))

	req := httptest.NewRequest(http.MethodGet, "/create-setup-intent", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp["clientSecret"], "_secret")
}

func TestAttachPaymentMethodRoute(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	pm := fake.SeedCardMethod("", "visa", "4242")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/lessons", map[string]string{
		"id":              custID,
		"paymentMethodId": pm,
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"lastFour":"4242","brand":"visa"}`, rr.Body.String())
}

func TestAccountUpdateRoute(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/account-update/"+custID, map[string]string{
		"name":  "Ada Lovelace",
		"email": "ada.lovelace@example.com",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t,
		`{"updatedName":"Ada Lovelace","updatedEmail":"ada.lovelace@example.com"}`,
		rr.Body.String())
}

func TestPaymentMethodSummaryRoute(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	fake.SeedCardMethod(custID, "visa", "4242")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	req := httptest.NewRequest(http.MethodGet, "/payment-method/"+custID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp methodSummaryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, custID, resp.Customer.ID)
	assert.Equal(t, "4242", resp.Card.Last4)
	assert.Equal(t, "visa", resp.Card.Brand)
}

func TestPaymentMethodSummaryRouteNotFound(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	req := httptest.NewRequest(http.MethodGet, "/payment-method/"+custID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no_payment_method")
}

func TestDeleteAccountRouteReportsUncaptured(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	pi := fake.SeedIntent(custID, 4500, stripe.PaymentIntentStatusRequiresCapture, time.Now(), nil)
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/delete-account/"+custID, map[string]string{})

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Uncaptured []string `json:"uncaptured_payments"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{pi}, resp.Uncaptured)
}

func TestDeleteAccountRouteDeletes(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	router := testRouter(NewHandler(NewService(fake, nil), nil))

	rr := postJSON(t, router, "/delete-account/"+custID, map[string]string{})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"deleted":true}`, rr.Body.String())
}
