package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"careerHub/internal/checkout"
	"careerHub/internal/config"
	"careerHub/internal/database"
	"careerHub/internal/errcode"
	"careerHub/internal/payment"
)

const stripeTestSecret = "whsec_routes"

// newStripeApp 把网关切换为 Stripe，PaymentIntent 请求由本地 httptest 服务应答。
func newStripeApp(t *testing.T) *testApp {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payment_intents" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown route"}}`))
			return
		}
		amount, _ := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "pi_" + r.PostForm.Get("metadata[receipt]"),
			"object":        "payment_intent",
			"amount":        amount,
			"currency":      r.PostForm.Get("currency"),
			"status":        "requires_payment_method",
			"client_secret": "secret_" + r.PostForm.Get("metadata[receipt]"),
		})
	}))
	t.Cleanup(api.Close)

	return newTestApp(t, func(cfg *config.Config) {
		cfg.Payment = config.PaymentConfig{
			Provider:             payment.ProviderStripe,
			StripeSecretKey:      "sk_test_routes",
			StripePublishableKey: "pk_test_routes",
			StripeWebhookSecret:  stripeTestSecret,
			StripeAPIURL:         api.URL,
		}
	})
}

func stripeEvent(eventType, intentID, chargeID string) []byte {
	b, _ := json.Marshal(map[string]any{
		"id":          "evt_" + intentID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data": map[string]any{"object": map[string]any{
			"id":            intentID,
			"object":        "payment_intent",
			"status":        "succeeded",
			"latest_charge": chargeID,
		}},
	})
	return b
}

func (a *testApp) postWebhook(payload []byte, secret string) *httptest.ResponseRecorder {
	header := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
	return a.do(request{
		method:      http.MethodPost,
		path:        "/payment/stripe/webhook",
		body:        bytes.NewReader(payload),
		contentType: "application/json",
		header:      map[string]string{"Stripe-Signature": header},
	})
}

func TestStripeWebhook_FinalizesPayment(t *testing.T) {
	app := newStripeApp(t)
	userToken := app.token(t, app.user)

	req := formRequest(http.MethodPost, fmt.Sprintf("/apply/%d", app.job.ID), applicantForm())
	req.token = userToken
	w := app.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sessionToken, _ := decodeJSON(t, w)["checkout_token"].(string)
	require.NotEmpty(t, sessionToken)

	w = app.do(request{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/plans/%d/select", app.premium.ID),
		token:    userToken,
		checkout: sessionToken,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	selected := decodeJSON(t, w)
	intentID, _ := selected["order_id"].(string)
	require.Equal(t, "pi_"+sessionToken, intentID)
	assert.Equal(t, payment.ProviderStripe, selected["provider"])
	assert.Equal(t, "pk_test_routes", selected["key_id"])
	assert.Equal(t, "secret_"+sessionToken, selected["client_secret"])

	var pay database.Payment
	require.NoError(t, app.db.Where("gateway_order_id = ?", intentID).First(&pay).Error)
	assert.Equal(t, database.PaymentStatusCreated, pay.Status)
	assert.Equal(t, payment.ProviderStripe, pay.Provider)

	// wrong signing secret
	w = app.postWebhook(stripeEvent("payment_intent.succeeded", intentID, "ch_1"), "whsec_forged")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errcode.SignatureFailed, decodeFail(t, w).Code)

	// unrelated event
	w = app.postWebhook(stripeEvent("payment_intent.created", intentID, ""), stripeTestSecret)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, app.db.First(&pay, pay.ID).Error)
	assert.Equal(t, database.PaymentStatusCreated, pay.Status)

	payload := stripeEvent("payment_intent.succeeded", intentID, "ch_1")
	w = app.postWebhook(payload, stripeTestSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, false, body["replayed"])

	require.NoError(t, app.db.First(&pay, pay.ID).Error)
	assert.Equal(t, database.PaymentStatusSuccess, pay.Status)
	assert.Equal(t, "ch_1", pay.GatewayPayID)
	assert.Equal(t, "evt_"+intentID, pay.Signature)

	var sess database.CheckoutSession
	require.NoError(t, app.db.Where("token = ?", sessionToken).First(&sess).Error)
	assert.Equal(t, string(checkout.StatePaymentVerified), sess.State)

	var profileRow database.Profile
	require.NoError(t, app.db.Where("user_id = ?", app.user.ID).First(&profileRow).Error)
	require.NotNil(t, profileRow.PlanID)
	assert.Equal(t, app.premium.ID, *profileRow.PlanID)

	// Stripe retries deliveries
	w = app.postWebhook(payload, stripeTestSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeJSON(t, w)["replayed"])

	w = app.do(request{method: http.MethodGet, path: "/payment-success", token: userToken, checkout: sessionToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, fmt.Sprintf("/confirm-courses/%d", app.course.ID), decodeJSON(t, w)["redirect"])
}

func TestStripeWebhook_UnknownIntentIgnored(t *testing.T) {
	app := newStripeApp(t)

	w := app.postWebhook(stripeEvent("payment_intent.succeeded", "pi_elsewhere", "ch_9"), stripeTestSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeJSON(t, w)["ignored"])

	var count int64
	require.NoError(t, app.db.Model(&database.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}
