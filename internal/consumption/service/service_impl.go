package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/wattlinehq/wattline/internal/consumption/domain"
	obsmetrics "github.com/wattlinehq/wattline/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("consumption.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// ApplyDelta adds delta units to the aggregate for (customer, year, month),
// creating the row when missing and removing it when the total drops to
// zero or below. Runs on the caller's transaction handle.
func (s *Service) ApplyDelta(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, year, month int, delta float64) error {
	if customerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if year <= 0 || month < 1 || month > 12 {
		return domain.ErrInvalidPeriod
	}
	if delta == 0 {
		return nil
	}

	aggregate, err := s.repo.FindForPeriod(ctx, tx, customerID, year, month)
	if err != nil {
		return err
	}

	switch {
	case aggregate == nil:
		if delta <= 0 {
			// Nothing to subtract from; a missing row already means zero.
			return nil
		}
		s.metrics.RecordLedgerDelta(ctx, "create")
		return s.repo.Insert(ctx, tx, &domain.Aggregate{
			ID:         s.genID.Generate(),
			CustomerID: customerID,
			Year:       year,
			Month:      month,
			Units:      delta,
		})
	case aggregate.Units+delta <= 0:
		s.metrics.RecordLedgerDelta(ctx, "remove")
		return s.repo.Delete(ctx, tx, aggregate.ID)
	default:
		s.metrics.RecordLedgerDelta(ctx, "update")
		return s.repo.UpdateUnits(ctx, tx, aggregate.ID, aggregate.Units+delta)
	}
}

func (s *Service) ListForCustomer(ctx context.Context, customerID snowflake.ID) ([]domain.Aggregate, error) {
	if customerID == 0 {
		return nil, domain.ErrInvalidCustomer
	}

	items, err := s.repo.ListForCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}

	aggregates := make([]domain.Aggregate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		aggregates = append(aggregates, *item)
	}
	return aggregates, nil
}

// Audit reconciles the stored aggregates against the sum of live bill units
// per period. A well-behaved system always reports Consistent; a mismatch
// means a repair is needed.
func (s *Service) Audit(ctx context.Context, customerID snowflake.ID) (domain.AuditReport, error) {
	if customerID == 0 {
		return domain.AuditReport{}, domain.ErrInvalidCustomer
	}

	type period struct {
		year  int
		month int
	}

	billed := map[period]float64{}
	rows, err := s.repo.ListBilledPeriods(ctx, s.db, customerID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	for _, row := range rows {
		issued := row.IssueDate.UTC()
		billed[period{issued.Year(), int(issued.Month())}] += row.Units
	}

	aggregates, err := s.repo.ListForCustomer(ctx, s.db, customerID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	stored := map[period]float64{}
	for _, aggregate := range aggregates {
		if aggregate == nil {
			continue
		}
		stored[period{aggregate.Year, aggregate.Month}] = aggregate.Units
	}

	seen := map[period]struct{}{}
	report := domain.AuditReport{CustomerID: customerID, Consistent: true}
	addFinding := func(p period) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		finding := domain.Finding{
			Year:           p.year,
			Month:          p.month,
			AggregateUnits: stored[p],
			BilledUnits:    billed[p],
		}
		report.Findings = append(report.Findings, finding)
		if !finding.Consistent() {
			report.Consistent = false
		}
	}
	for p := range billed {
		addFinding(p)
	}
	for p := range stored {
		addFinding(p)
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	if !report.Consistent {
		s.log.Warn("consumption ledger inconsistent",
			zap.String("customer_id", customerID.String()),
			zap.Int("periods", len(report.Findings)),
		)
	}
	return report, nil
}
