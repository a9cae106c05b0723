package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *Bill) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bill, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]View, error)
	ListForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Bill, error)
	ListUnpaidForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Bill, error)
	Update(ctx context.Context, db *gorm.DB, bill *Bill) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
