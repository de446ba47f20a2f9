package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test"

func succeededEvent(eventType, intentID, chargeID string) []byte {
	intent := map[string]any{
		"id":     intentID,
		"object": "payment_intent",
		"status": "succeeded",
	}
	if chargeID != "" {
		intent["latest_charge"] = chargeID
	}
	b, _ := json.Marshal(map[string]any{
		"id":          "evt_" + intentID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": intent},
	})
	return b
}

func signPayload(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	}).Header
}

// stripeStub 模拟 /v1/payment_intents，按 ID 返回预置状态。
func stripeStub(t *testing.T, statuses map[string]string) (*httptest.Server, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen = append(seen, r)
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad key"}}`))
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payment_intents":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "pi_123",
				"object":        "payment_intent",
				"amount":        49999,
				"currency":      r.PostForm.Get("currency"),
				"status":        "requires_payment_method",
				"client_secret": "pi_123_secret_abc",
			})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payment_intents/"):
			id := strings.TrimPrefix(r.URL.Path, "/v1/payment_intents/")
			status, ok := statuses[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": id, "object": "payment_intent", "status": status})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown route"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestStripe_CreateOrder(t *testing.T) {
	srv, seen := stripeStub(t, nil)
	gw := NewStripeGateway("sk_test_123", "pk_test_123", testWebhookSecret)
	gw.SetAPIURL(srv.URL)

	order, err := gw.CreateOrder(context.Background(), MinorUnits(499.99), "INR", "receipt-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", order.ID)
	assert.Equal(t, int64(49999), order.AmountMinor)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "receipt-1", order.Receipt)
	assert.Equal(t, "pi_123_secret_abc", order.ClientSecret)

	require.Len(t, *seen, 1)
	form := (*seen)[0].PostForm
	assert.Equal(t, "49999", form.Get("amount"))
	assert.Equal(t, "inr", form.Get("currency"))
	assert.Equal(t, "receipt-1", form.Get("metadata[receipt]"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))

	assert.Equal(t, ProviderStripe, gw.Provider())
	assert.Equal(t, "pk_test_123", gw.KeyID())
}

func TestStripe_CreateOrderRejected(t *testing.T) {
	srv, _ := stripeStub(t, nil)
	gw := NewStripeGateway("sk_wrong", "pk_test_123", testWebhookSecret)
	gw.SetAPIURL(srv.URL)

	_, err := gw.CreateOrder(context.Background(), 100, "INR", "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create payment intent")
}

func TestStripe_VerifySignature(t *testing.T) {
	srv, _ := stripeStub(t, map[string]string{
		"pi_paid":    "succeeded",
		"pi_pending": "requires_payment_method",
	})
	gw := NewStripeGateway("sk_test_123", "pk_test_123", testWebhookSecret)
	gw.SetAPIURL(srv.URL)
	ctx := context.Background()

	require.NoError(t, gw.VerifySignature(ctx, "pi_paid", "", ""))
	assert.ErrorIs(t, gw.VerifySignature(ctx, "pi_pending", "", ""), ErrNotCaptured)
	assert.ErrorIs(t, gw.VerifySignature(ctx, "", "", ""), ErrSignatureMismatch)

	err := gw.VerifySignature(ctx, "pi_missing", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get payment intent")
}

func TestStripe_ParseWebhook(t *testing.T) {
	gw := NewStripeGateway("sk_test_123", "pk_test_123", testWebhookSecret)

	t.Run("succeeded with charge", func(t *testing.T) {
		payload := succeededEvent("payment_intent.succeeded", "pi_1", "ch_1")
		got, err := gw.ParseWebhook(payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "evt_pi_1", got.EventID)
		assert.Equal(t, "pi_1", got.OrderID)
		assert.Equal(t, "ch_1", got.PaymentID)
	})

	t.Run("succeeded without charge uses intent id", func(t *testing.T) {
		payload := succeededEvent("payment_intent.succeeded", "pi_2", "")
		got, err := gw.ParseWebhook(payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "pi_2", got.PaymentID)
	})

	t.Run("other event types are ignored", func(t *testing.T) {
		payload := succeededEvent("payment_intent.created", "pi_3", "")
		got, err := gw.ParseWebhook(payload, signPayload(payload, testWebhookSecret))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		payload := succeededEvent("payment_intent.succeeded", "pi_4", "ch_4")
		_, err := gw.ParseWebhook(payload, signPayload(payload, "whsec_other"))
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("tampered body", func(t *testing.T) {
		payload := succeededEvent("payment_intent.succeeded", "pi_5", "ch_5")
		header := signPayload(payload, testWebhookSecret)
		tampered := succeededEvent("payment_intent.succeeded", "pi_6", "ch_5")
		_, err := gw.ParseWebhook(tampered, header)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	})

	t.Run("missing secret", func(t *testing.T) {
		unconfigured := NewStripeGateway("sk_test_123", "pk_test_123", "")
		payload := succeededEvent("payment_intent.succeeded", "pi_7", "")
		_, err := unconfigured.ParseWebhook(payload, signPayload(payload, testWebhookSecret))
		assert.ErrorIs(t, err, ErrWebhookNotConfigured)
	})
}
