package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/wattlinehq/wattline/internal/bill/domain"
)

type repositoryImpl struct{}

func Provide() domain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	return db.WithContext(ctx).Create(bill).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bill, error) {
	var bill domain.Bill
	err := db.WithContext(ctx).Where("id = ?", id).First(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bill, nil
}

func (r *repositoryImpl) ListAll(ctx context.Context, db *gorm.DB) ([]domain.View, error) {
	var views []domain.View
	err := db.WithContext(ctx).
		Table("bills").
		Select("bills.*, users.name AS customer_name, users.email AS customer_email").
		Joins("JOIN users ON users.id = bills.customer_id").
		Order("bills.issue_date DESC, bills.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (r *repositoryImpl) ListForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Bill, error) {
	var bills []domain.Bill
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("issue_date DESC, id DESC").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repositoryImpl) ListUnpaidForCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Bill, error) {
	var bills []domain.Bill
	err := db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, domain.StatusUnpaid).
		Order("issue_date ASC, id ASC").
		Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repositoryImpl) Update(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	return db.WithContext(ctx).Save(bill).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Bill{}).Error
}
