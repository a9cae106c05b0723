package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/wattlinehq/wattline/internal/consumption/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindForPeriod(ctx context.Context, db *gorm.DB, customerID snowflake.ID, year, month int) (*domain.Aggregate, error) {
	var aggregate domain.Aggregate
	err := db.WithContext(ctx).
		First(&aggregate, "customer_id = ? AND year = ? AND month = ?", customerID, year, month).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &aggregate, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, aggregate *domain.Aggregate) error {
	return db.WithContext(ctx).Create(aggregate).Error
}

func (r *repo) UpdateUnits(ctx context.Context, db *gorm.DB, id snowflake.ID, units float64) error {
	return db.WithContext(ctx).
		Model(&domain.Aggregate{}).
		Where("id = ?", id).
		Update("units", units).
		Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.Aggregate{}, "id = ?", id).Error
}

func (r *repo) ListForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*domain.Aggregate, error) {
	var aggregates []*domain.Aggregate
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("year asc, month asc").
		Find(&aggregates).
		Error
	if err != nil {
		return nil, err
	}
	return aggregates, nil
}

// ListBilledPeriods returns the raw (issue_date, units) pairs of a
// customer's live bills; grouping into calendar periods happens in the
// service so the query stays dialect-neutral.
func (r *repo) ListBilledPeriods(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.BilledPeriod, error) {
	var rows []domain.BilledPeriod
	err := db.WithContext(ctx).
		Table("bills").
		Select("issue_date, units").
		Where("customer_id = ?", customerID).
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
