package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmonyhall/lessons-payments/internal/customers"
	"github.com/harmonyhall/lessons-payments/internal/gateway/gatewaytest"
	"github.com/harmonyhall/lessons-payments/internal/lessons"
	"github.com/harmonyhall/lessons-payments/pkg/logging"
)

func newTestRouter(fake *gatewaytest.Fake) http.Handler {
	logger := logging.Default()
	return New(&Config{
		Logger:             logger,
		CustomersHandler:   customers.NewHandler(customers.NewService(fake, logger), logger),
		LessonsHandler:     lessons.NewHandler(lessons.NewService(fake, logger), logger),
		PublishableKey:     "pk_test_abc",
		CORSAllowedOrigins: []string{"*"},
	})
}

func TestConfigEndpointReturnsPublishableKey(t *testing.T) {
	r := newTestRouter(gatewaytest.NewFake())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"pk_test_abc"}`, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(gatewaytest.NewFake())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFullLifecycleThroughRouter(t *testing.T) {
	fake := gatewaytest.NewFake()
	custID := fake.SeedCustomer("Ada", "ada@example.com")
	fake.SeedCardMethod(custID, "visa", "4242")
	r := newTestRouter(fake)

	// Authorize
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedule-lesson",
		strings.NewReader(`{"customer_id":"`+custID+`","amount":4500,"description":"Lesson"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var authorized struct {
		Payment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authorized))
	require.Equal(t, "requires_capture", authorized.Payment.Status)

	// Capture
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/complete-lesson-payment",
		strings.NewReader(`{"payment_intent_id":"`+authorized.Payment.ID+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"succeeded"`)

	// Refund
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refund-lesson",
		strings.NewReader(`{"payment_intent_id":"`+authorized.Payment.ID+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refund"`)
}

func TestUnknownRouteReturns404(t *testing.T) {
	r := newTestRouter(gatewaytest.NewFake())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
