package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// CreateOrderRequest opens a gateway checkout order for one bill, or for
// every unpaid bill when BillRef is BillRefAll.
type CreateOrderRequest struct {
	CustomerID snowflake.ID
	BillRef    string
}

// OrderResponse carries what the checkout widget needs to start a payment.
type OrderResponse struct {
	OrderID  string  `json:"order_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	KeyID    string  `json:"key_id"`
	BillRef  string  `json:"bill_ref"`
}

// VerifyRequest is the checkout callback: gateway identifiers plus the
// signature proving the gateway completed the payment.
type VerifyRequest struct {
	CustomerID       snowflake.ID
	BillRef          string
	OrderID          string
	GatewayPaymentID string
	Signature        string
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error)

	// VerifyAndRecord validates the gateway signature, settles the
	// referenced bill(s) and records the payment, all atomically. A
	// replay of an already recorded GatewayPaymentID returns the stored
	// payment without touching any bill again.
	VerifyAndRecord(ctx context.Context, req VerifyRequest) (*Payment, error)

	ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]Payment, error)

	// GetOwned fetches a payment only when it belongs to customerID;
	// anything else is ErrNotFound.
	GetOwned(ctx context.Context, customerID, paymentID snowflake.ID) (*Payment, error)
}

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidBillRef   = errors.New("invalid_bill_ref")
	ErrGateway          = errors.New("gateway_unavailable")
	ErrNotFound         = errors.New("payment_not_found")
)
