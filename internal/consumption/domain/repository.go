package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BilledPeriod is one live bill's contribution to a period, used by the
// audit reconciliation.
type BilledPeriod struct {
	IssueDate time.Time
	Units     float64
}

type Repository interface {
	FindForPeriod(ctx context.Context, db *gorm.DB, customerID snowflake.ID, year, month int) (*Aggregate, error)
	Insert(ctx context.Context, db *gorm.DB, aggregate *Aggregate) error
	UpdateUnits(ctx context.Context, db *gorm.DB, id snowflake.ID, units float64) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*Aggregate, error)
	ListBilledPeriods(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]BilledPeriod, error)
}
