package service

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wattlinehq/wattline/internal/bill/domain"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	"github.com/wattlinehq/wattline/internal/observability/logger"
	obsmetrics "github.com/wattlinehq/wattline/internal/observability/metrics"
	"github.com/wattlinehq/wattline/internal/tariff"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
)

// amountTolerance is the largest difference between a stored amount and the
// tariff amount that still counts as "matching", absorbing float rounding.
const amountTolerance = 0.005

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Users      userdomain.Repository
	Ledger     consumptiondomain.Service
	Calculator *tariff.Calculator
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	users      userdomain.Repository
	ledger     consumptiondomain.Service
	calculator *tariff.Calculator
	metrics    *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bill.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		users:      p.Users,
		ledger:     p.Ledger,
		calculator: p.Calculator,
		metrics:    p.Metrics,
	}
}

// Create prices the units with the active tariff, persists the bill and
// credits its units to the consumption ledger in one transaction.
func (s *Service) Create(ctx context.Context, req domain.CreateBillRequest) (*domain.Bill, error) {
	log := logger.WithContext(ctx, s.log)

	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return nil, domain.ErrCustomerNotFound
	}
	customer, err := s.users.FindByID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil || customer.Role != userdomain.RoleCustomer {
		return nil, domain.ErrCustomerNotFound
	}

	amount, err := s.calculator.Compute(req.Units)
	if err != nil {
		return nil, domain.ErrInvalidUnits
	}

	issueDate := time.Now().UTC()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}
	dueDate := issueDate.AddDate(0, 0, domain.DueInDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}

	bill := &domain.Bill{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Units:      req.Units,
		Amount:     amount,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Status:     domain.StatusUnpaid,
	}

	year, month := bill.Period()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, bill); err != nil {
			return err
		}
		return s.ledger.ApplyDelta(ctx, tx, customerID, year, month, bill.Units)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordBillCreated(ctx)
	log.Info("bill created",
		zap.String("bill_id", bill.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.Float64("units", bill.Units),
		zap.Float64("amount", bill.Amount),
	)
	return bill, nil
}

func (s *Service) ListAll(ctx context.Context) ([]domain.View, error) {
	return s.repo.ListAll(ctx, s.db)
}

func (s *Service) ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Bill, error) {
	return s.repo.ListForCustomer(ctx, s.db, customerID)
}

func (s *Service) GetOwned(ctx context.Context, customerID, billID snowflake.ID) (*domain.Bill, error) {
	bill, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil || bill.CustomerID != customerID {
		return nil, domain.ErrNotFound
	}
	return bill, nil
}

// Update patches the bill and corrects the consumption ledger by the change
// in units, both inside one transaction. The response reports the tariff
// amount for the stored units so a manual amount override is visible.
func (s *Service) Update(ctx context.Context, req domain.UpdateBillRequest) (*domain.UpdateBillResult, error) {
	log := logger.WithContext(ctx, s.log)

	id, err := snowflake.ParseString(req.ID)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	if req.Units != nil && *req.Units <= 0 {
		return nil, domain.ErrInvalidUnits
	}
	if req.Amount != nil && *req.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.Status != nil && !domain.ValidStatus(*req.Status) {
		return nil, domain.ErrInvalidStatus
	}

	var updated domain.Bill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if bill == nil {
			return domain.ErrNotFound
		}

		oldUnits := bill.Units
		if req.Units != nil {
			// Amount is never recomputed here. A units edit without an
			// explicit amount leaves the stored amount alone and the
			// divergence shows up in the result.
			bill.Units = *req.Units
		}
		if req.Amount != nil {
			bill.Amount = *req.Amount
		}
		if req.DueDate != nil {
			bill.DueDate = req.DueDate.UTC()
		}
		if req.Status != nil {
			bill.Status = *req.Status
		}
		bill.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, bill); err != nil {
			return err
		}

		if delta := bill.Units - oldUnits; delta != 0 {
			year, month := bill.Period()
			if err := s.ledger.ApplyDelta(ctx, tx, bill.CustomerID, year, month, delta); err != nil {
				return err
			}
		}

		updated = *bill
		return nil
	})
	if err != nil {
		return nil, err
	}

	tariffAmount, err := s.calculator.Compute(updated.Units)
	if err != nil {
		return nil, err
	}
	result := &domain.UpdateBillResult{
		Bill:           updated,
		TariffAmount:   tariffAmount,
		AmountDiverged: math.Abs(updated.Amount-tariffAmount) > amountTolerance,
	}

	log.Info("bill updated",
		zap.String("bill_id", updated.ID.String()),
		zap.Float64("units", updated.Units),
		zap.Float64("amount", updated.Amount),
		zap.Bool("amount_diverged", result.AmountDiverged),
	)
	return result, nil
}

// Delete removes the bill and debits its units from the consumption ledger
// in one transaction.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	log := logger.WithContext(ctx, s.log)

	id, err := snowflake.ParseString(rawID)
	if err != nil {
		return domain.ErrNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if bill == nil {
			return domain.ErrNotFound
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		year, month := bill.Period()
		return s.ledger.ApplyDelta(ctx, tx, bill.CustomerID, year, month, -bill.Units)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordBillDeleted(ctx)
	log.Info("bill deleted", zap.String("bill_id", id.String()))
	return nil
}

func (s *Service) SettleBill(ctx context.Context, tx *gorm.DB, customerID, billID snowflake.ID) (*domain.Bill, error) {
	bill, err := s.repo.FindByID(ctx, tx, billID)
	if err != nil {
		return nil, err
	}
	if bill == nil || bill.CustomerID != customerID {
		return nil, domain.ErrNotFound
	}
	if bill.Status == domain.StatusPaid {
		// Already settled, likely a concurrent checkout. The transition is
		// a no-op but the caller still records its payment.
		return bill, nil
	}

	bill.Status = domain.StatusPaid
	bill.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, tx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *Service) SettleAllUnpaid(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) ([]domain.Bill, error) {
	bills, err := s.repo.ListUnpaidForCustomer(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range bills {
		bills[i].Status = domain.StatusPaid
		bills[i].UpdatedAt = now
		if err := s.repo.Update(ctx, tx, &bills[i]); err != nil {
			return nil, err
		}
	}
	return bills, nil
}
