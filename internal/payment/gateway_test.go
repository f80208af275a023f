package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPGateway_Authorize(t *testing.T) {
	req := AuthorizationRequest{
		PaymentRef:  "pay-001",
		AccountID:   "1000000001",
		MoneyAmount: 500,
		Method:      "card",
	}

	t.Run("approved", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var got AuthorizationRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, "pay-001", got.PaymentRef)
			json.NewEncoder(w).Encode(AuthorizationResult{PaymentRef: got.PaymentRef, Approved: true})
		}))
		defer server.Close()

		gateway := NewHTTPGateway(server.URL, time.Second)
		result, err := gateway.Authorize(context.Background(), req)
		assert.NoError(t, err)
		assert.True(t, result.Approved)
	})

	t.Run("declined", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(AuthorizationResult{PaymentRef: "pay-001", Approved: false, Reason: "insufficient funds"})
		}))
		defer server.Close()

		gateway := NewHTTPGateway(server.URL, time.Second)
		_, err := gateway.Authorize(context.Background(), req)
		assert.True(t, errors.Is(err, ErrDeclined))
	})

	t.Run("timeout fails closed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		gateway := NewHTTPGateway(server.URL, 50*time.Millisecond)
		_, err := gateway.Authorize(context.Background(), req)
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		gateway := NewHTTPGateway(server.URL, time.Second)
		_, err := gateway.Authorize(context.Background(), req)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrDeclined))
	})
}
