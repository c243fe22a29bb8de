package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", errors.New("connection reset"), true},
		{"rate limited", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"processor 500", &stripe.Error{HTTPStatusCode: http.StatusInternalServerError}, true},
		{"not found", &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}, false},
		{"card declined", &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Code: stripe.ErrorCodeCardDeclined}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transient(tc.err))
		})
	}
}

func TestReadRetryRecoversFromTransientFailure(t *testing.T) {
	g := NewStripeGateway("sk_test_x", nil, nil, 3)
	g.retryInterval = time.Millisecond

	attempts := 0
	got, err := readRetry(g, context.Background(), "list_charges", func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", &stripe.Error{HTTPStatusCode: http.StatusInternalServerError, Msg: "upstream hiccup"}
		}
		return "page", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "page", got)
	assert.Equal(t, 3, attempts)
}

func TestReadRetryStopsOnPermanentError(t *testing.T) {
	g := NewStripeGateway("sk_test_x", nil, nil, 3)
	g.retryInterval = time.Millisecond

	attempts := 0
	_, err := readRetry(g, context.Background(), "get_customer", func() (*stripe.Customer, error) {
		attempts++
		return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var stripeErr *stripe.Error
	assert.True(t, errors.As(err, &stripeErr))
}

func TestReadRetryGivesUpAfterBoundedAttempts(t *testing.T) {
	g := NewStripeGateway("sk_test_x", nil, nil, 2)
	g.retryInterval = time.Millisecond

	attempts := 0
	_, err := readRetry(g, context.Background(), "list_charges", func() (string, error) {
		attempts++
		return "", errors.New("connection reset")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial call + 2 retries
}

func TestReadRetryHonorsContextCancellation(t *testing.T) {
	g := NewStripeGateway("sk_test_x", nil, nil, 10)
	g.retryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readRetry(g, ctx, "list_charges", func() (string, error) {
		return "", errors.New("connection reset")
	})
	require.Error(t, err)
}
