package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateBillRequest struct {
	CustomerID string     `json:"customer_id" binding:"required"`
	Units      float64    `json:"units" binding:"required"`
	IssueDate  *time.Time `json:"issue_date"`
	DueDate    *time.Time `json:"due_date"`
}

// UpdateBillRequest patches a bill. Nil fields are left untouched. Amount may
// be set independently of units; the response reports whether the stored
// amount still matches the tariff for the stored units.
type UpdateBillRequest struct {
	ID      string     `json:"-"`
	Units   *float64   `json:"units"`
	Amount  *float64   `json:"amount"`
	DueDate *time.Time `json:"due_date"`
	Status  *string    `json:"status"`
}

// UpdateBillResult carries the persisted bill plus the amount the tariff
// would produce for its units, so callers can surface manual overrides.
type UpdateBillResult struct {
	Bill           Bill    `json:"bill"`
	TariffAmount   float64 `json:"tariff_amount"`
	AmountDiverged bool    `json:"amount_diverged"`
}

type Service interface {
	Create(ctx context.Context, req CreateBillRequest) (*Bill, error)
	ListAll(ctx context.Context) ([]View, error)
	ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]Bill, error)

	// GetOwned fetches a bill only when it belongs to customerID. A bill
	// owned by someone else is reported as ErrNotFound, never as a
	// permission error, so IDs cannot be probed across accounts.
	GetOwned(ctx context.Context, customerID, billID snowflake.ID) (*Bill, error)

	Update(ctx context.Context, req UpdateBillRequest) (*UpdateBillResult, error)
	Delete(ctx context.Context, id string) error

	// SettleBill flips a single bill to paid inside the caller's
	// transaction. A bill that is already paid is returned unchanged.
	SettleBill(ctx context.Context, tx *gorm.DB, customerID, billID snowflake.ID) (*Bill, error)

	// SettleAllUnpaid flips every unpaid bill for the customer to paid
	// inside the caller's transaction and returns the settled bills. The
	// slice may be empty when nothing was owed.
	SettleAllUnpaid(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) ([]Bill, error)
}

var (
	ErrInvalidUnits     = errors.New("invalid_units")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrNotFound         = errors.New("bill_not_found")
	ErrAlreadyPaid      = errors.New("bill_already_paid")
	ErrNoUnpaidBills    = errors.New("no_unpaid_bills")
)
