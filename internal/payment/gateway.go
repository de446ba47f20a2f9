package payment

import (
	"context"
	"errors"
	"fmt"
	"math"

	"careerHub/internal/config"
)

const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

var (
	// ErrSignatureMismatch 表示回调内容不是网关签发的。
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrNotCaptured 表示网关尚未完成扣款。
	ErrNotCaptured = errors.New("payment not captured")
)

// Order 是用户付款前在网关创建的订单。
type Order struct {
	ID           string `json:"id"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Gateway 抽象远端支付网关。
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error)
	VerifySignature(ctx context.Context, orderID, paymentID, signature string) error
	Provider() string
	KeyID() string
}

// MinorUnits 把以元计的价格换算为网关使用的最小货币单位（价格 × 100）。
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// NewGateway 按 cfg.Provider 构造网关。
func NewGateway(cfg config.PaymentConfig) (Gateway, error) {
	switch cfg.Provider {
	case ProviderRazorpay, "":
		client := NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
		if cfg.RazorpayAPIURL != "" {
			client.APIURL = cfg.RazorpayAPIURL
		}
		return client, nil
	case ProviderStripe:
		gw := NewStripeGateway(cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.StripeWebhookSecret)
		if cfg.StripeAPIURL != "" {
			gw.SetAPIURL(cfg.StripeAPIURL)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}
