package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RazorpayClient 调用 Razorpay Orders API 并校验支付回调签名。
type RazorpayClient struct {
	KeyIDValue string
	KeySecret  string
	APIURL     string
	HTTPClient *http.Client
}

func NewRazorpayClient(keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		KeyIDValue: keyID,
		KeySecret:  keySecret,
		APIURL:     "https://api.razorpay.com/v1",
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type razorpayOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt,omitempty"`
	PaymentCapture int    `json:"payment_capture"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (c *RazorpayClient) Provider() string { return ProviderRazorpay }

func (c *RazorpayClient) KeyID() string { return c.KeyIDValue }

func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error) {
	jsonBody, err := json.Marshal(razorpayOrderRequest{
		Amount:         amountMinor,
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	if err != nil {
		return Order{}, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/orders", bytes.NewReader(jsonBody))
	if err != nil {
		return Order{}, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.SetBasicAuth(c.KeyIDValue, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Order{}, fmt.Errorf("read order response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Order{}, fmt.Errorf("razorpay api error: %s (status: %d)", string(respBody), resp.StatusCode)
	}

	var out razorpayOrderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Order{}, fmt.Errorf("decode order response: %w", err)
	}
	if out.ID == "" {
		return Order{}, fmt.Errorf("razorpay order response missing id")
	}

	return Order{
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
		Status:      out.Status,
	}, nil
}

// VerifySignature 以常量时间比较 hex(HMAC-SHA256(secret, orderID|paymentID))。
func (c *RazorpayClient) VerifySignature(_ context.Context, orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}
	expected := Sign(c.KeySecret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign 计算 Razorpay 为已扣款支付附带的回调签名。
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
