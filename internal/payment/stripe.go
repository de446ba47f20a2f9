package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrWebhookNotConfigured 表示未配置 webhook 签名密钥。
var ErrWebhookNotConfigured = errors.New("stripe webhook secret missing")

// StripeGateway 以 PaymentIntent 作为订单。
type StripeGateway struct {
	intents        *paymentintent.Client
	publishableKey string
	webhookSecret  string
}

func NewStripeGateway(secretKey, publishableKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		intents: &paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: secretKey,
		},
		publishableKey: publishableKey,
		webhookSecret:  webhookSecret,
	}
}

// SetAPIURL 将 PaymentIntent 请求发往指定地址，如 stripe-mock。不做网络重试。
func (g *StripeGateway) SetAPIURL(url string) {
	g.intents.B = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
}

func (g *StripeGateway) Provider() string { return ProviderStripe }

// KeyID 返回前端确认支付所需的 publishable key。
func (g *StripeGateway) KeyID() string { return g.publishableKey }

func (g *StripeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("receipt", receipt)

	pi, err := g.intents.New(params)
	if err != nil {
		return Order{}, fmt.Errorf("create payment intent: %w", err)
	}

	return Order{
		ID:           pi.ID,
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      receipt,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifySignature 对 Stripe 没有签名可验，改为服务端查询 PaymentIntent，
// 状态必须为 succeeded。
func (g *StripeGateway) VerifySignature(ctx context.Context, orderID, _, _ string) error {
	if orderID == "" {
		return ErrSignatureMismatch
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(orderID, params)
	if err != nil {
		return fmt.Errorf("get payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return ErrNotCaptured
	}
	return nil
}

// WebhookPayment 是从已验签事件中取出的成功支付。
type WebhookPayment struct {
	EventID   string
	OrderID   string
	PaymentID string
}

// ParseWebhook 校验 Stripe-Signature 头并提取 payment_intent.succeeded 事件，
// 其他事件类型返回 (nil, nil)。
func (g *StripeGateway) ParseWebhook(payload []byte, sigHeader string) (*WebhookPayment, error) {
	if g.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		g.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	if event.Type != "payment_intent.succeeded" {
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	paymentID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		paymentID = pi.LatestCharge.ID
	}
	return &WebhookPayment{
		EventID:   event.ID,
		OrderID:   pi.ID,
		PaymentID: paymentID,
	}, nil
}
