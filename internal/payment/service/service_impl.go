package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	"github.com/wattlinehq/wattline/internal/config"
	"github.com/wattlinehq/wattline/internal/gateway/razorpay"
	"github.com/wattlinehq/wattline/internal/observability/logger"
	obsmetrics "github.com/wattlinehq/wattline/internal/observability/metrics"
	"github.com/wattlinehq/wattline/internal/payment/domain"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
	pkgdb "github.com/wattlinehq/wattline/pkg/db"
)

const currency = "INR"

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Bills   billdomain.Service
	Users   userdomain.Repository
	Gateway razorpay.Gateway
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	cfg     config.Config
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	bills   billdomain.Service
	users   userdomain.Repository
	gateway razorpay.Gateway
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		cfg:     p.Config,
		db:      p.DB,
		log:     p.Log.Named("payment.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		bills:   p.Bills,
		users:   p.Users,
		gateway: p.Gateway,
		metrics: p.Metrics,
	}
}

// CreateOrder resolves the amount owed for the bill reference and opens a
// gateway order for it. The amount is priced server-side from stored bills,
// never taken from the client.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderResponse, error) {
	log := logger.WithContext(ctx, s.log)

	amount, err := s.amountOwed(ctx, s.db, req.CustomerID, req.BillRef)
	if err != nil {
		return nil, err
	}

	receipt := fmt.Sprintf("wl_%s_%d", req.CustomerID.String(), s.genID.Generate().Int64())
	order, err := s.gateway.CreateOrder(ctx, amount, currency, receipt)
	if err != nil {
		s.metrics.RecordGatewayOrder(ctx, "error")
		log.Error("gateway order failed", zap.Error(err))
		return nil, domain.ErrGateway
	}

	s.metrics.RecordGatewayOrder(ctx, "created")
	log.Info("gateway order created",
		zap.String("order_id", order.ID),
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("bill_ref", req.BillRef),
		zap.Float64("amount", amount),
	)
	return &domain.OrderResponse{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: currency,
		KeyID:    s.cfg.GatewayKeyID,
		BillRef:  req.BillRef,
	}, nil
}

// VerifyAndRecord is the settlement path. Order of operations matters:
// signature first, so forged callbacks never reach the database; then the
// idempotency check; then one transaction flipping bills and inserting the
// payment row, so a failure anywhere leaves both untouched.
func (s *Service) VerifyAndRecord(ctx context.Context, req domain.VerifyRequest) (*domain.Payment, error) {
	log := logger.WithContext(ctx, s.log)

	if !s.gateway.VerifySignature(req.OrderID, req.GatewayPaymentID, req.Signature) {
		s.metrics.RecordPaymentVerification(ctx, "rejected")
		log.Warn("payment signature rejected",
			zap.String("order_id", req.OrderID),
			zap.String("customer_id", req.CustomerID.String()),
		)
		return nil, domain.ErrInvalidSignature
	}

	existing, err := s.repo.FindByGatewayPaymentID(ctx, s.db, req.GatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.RecordPaymentVerification(ctx, "duplicate")
		log.Info("payment replayed, returning recorded settlement",
			zap.String("gateway_payment_id", req.GatewayPaymentID),
		)
		return existing, nil
	}

	customer, err := s.users.FindByID(ctx, s.db, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, userdomain.ErrNotFound
	}

	payment := &domain.Payment{
		ID:               s.genID.Generate(),
		CustomerID:       req.CustomerID,
		CustomerEmail:    customer.Email,
		BillRef:          req.BillRef,
		OrderID:          req.OrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Method:           domain.MethodRazorpay,
		Status:           domain.StatusCompleted,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settled, err := s.settle(ctx, tx, req.CustomerID, req.BillRef)
		if err != nil {
			return err
		}

		total := 0.0
		refs := make([]string, 0, len(settled))
		for _, bill := range settled {
			total += bill.Amount
			refs = append(refs, bill.ID.String())
		}
		payment.Amount = total
		payment.Metadata = datatypes.JSONMap{
			"settled_bill_ids": refs,
		}

		return s.repo.Insert(ctx, tx, payment)
	})
	if err != nil {
		// Two verifications raced past the pre-check; the unique index on
		// gateway_payment_id decided the winner. Hand back its record.
		if pkgdb.IsDuplicateKeyErr(err) {
			s.metrics.RecordPaymentVerification(ctx, "duplicate")
			return s.repo.FindByGatewayPaymentID(ctx, s.db, req.GatewayPaymentID)
		}
		return nil, err
	}

	s.metrics.RecordPaymentVerification(ctx, "completed")
	log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("gateway_payment_id", payment.GatewayPaymentID),
		zap.String("bill_ref", payment.BillRef),
		zap.Float64("amount", payment.Amount),
	)
	return payment, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Payment, error) {
	return s.repo.ListForCustomer(ctx, s.db, customerID)
}

func (s *Service) GetOwned(ctx context.Context, customerID, paymentID snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.CustomerID != customerID {
		return nil, domain.ErrNotFound
	}
	return payment, nil
}

// amountOwed prices a bill reference without mutating anything.
func (s *Service) amountOwed(ctx context.Context, db *gorm.DB, customerID snowflake.ID, billRef string) (float64, error) {
	if billRef == domain.BillRefAll {
		bills, err := s.bills.ListForCustomer(ctx, customerID)
		if err != nil {
			return 0, err
		}
		total := 0.0
		unpaid := 0
		for _, bill := range bills {
			if bill.Status == billdomain.StatusUnpaid {
				total += bill.Amount
				unpaid++
			}
		}
		if unpaid == 0 {
			return 0, billdomain.ErrNoUnpaidBills
		}
		return total, nil
	}

	billID, err := snowflake.ParseString(billRef)
	if err != nil {
		return 0, domain.ErrInvalidBillRef
	}
	bill, err := s.bills.GetOwned(ctx, customerID, billID)
	if err != nil {
		return 0, err
	}
	if bill.Status == billdomain.StatusPaid {
		return 0, billdomain.ErrAlreadyPaid
	}
	return bill.Amount, nil
}

// settle flips the referenced bill(s) to paid inside tx.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, billRef string) ([]billdomain.Bill, error) {
	if billRef == domain.BillRefAll {
		return s.bills.SettleAllUnpaid(ctx, tx, customerID)
	}

	billID, err := snowflake.ParseString(billRef)
	if err != nil {
		return nil, domain.ErrInvalidBillRef
	}
	bill, err := s.bills.SettleBill(ctx, tx, customerID, billID)
	if err != nil {
		return nil, err
	}
	return []billdomain.Bill{*bill}, nil
}
