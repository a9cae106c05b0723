package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the consumption ledger. ApplyDelta must always run inside the
// transaction of the bill mutation it accounts for, which is why it takes
// the caller's handle explicitly.
type Service interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, year, month int, delta float64) error
	ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]Aggregate, error)
	Audit(ctx context.Context, customerID snowflake.ID) (AuditReport, error)
}

var (
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidCustomer = errors.New("invalid_customer")
)
