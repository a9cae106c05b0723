// Package razorpay is a thin client for the Razorpay Orders API plus the
// signature scheme used to verify checkout callbacks.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/wattlinehq/wattline/internal/config"
)

// Order is the subset of the Razorpay order resource the backend needs.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway is the payment-gateway surface the payment service depends on.
// Tests substitute a fake; production wires the HTTP client below.
type Gateway interface {
	// CreateOrder opens a checkout order for the given rupee amount.
	CreateOrder(ctx context.Context, amount float64, currency, receipt string) (*Order, error)

	// VerifySignature reports whether signature is a valid MAC over the
	// order and payment identifiers of a completed checkout.
	VerifySignature(orderID, paymentID, signature string) bool
}

type Client struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config) Gateway {
	return &Client{
		keyID:     cfg.GatewayKeyID,
		keySecret: cfg.GatewayKeySecret,
		baseURL:   cfg.GatewayBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

var Module = fx.Module("gateway.razorpay",
	fx.Provide(NewClient),
)

// CreateOrder posts to /v1/orders. Razorpay amounts are integer paise, so
// the rupee amount is scaled by 100 before sending.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (*Order, error) {
	payload := map[string]any{
		"amount":   int64(math.Round(amount * 100)),
		"currency": currency,
		"receipt":  receipt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("razorpay: create order: status %d: %s", resp.StatusCode, data)
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("razorpay: decode order: %w", err)
	}
	return &order, nil
}

// VerifySignature checks the checkout callback MAC: HMAC-SHA256 over
// "<orderID>|<paymentID>" keyed with the API secret, hex encoded.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(c.keySecret, orderID, paymentID, signature)
}

func VerifySignature(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
