package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	"github.com/wattlinehq/wattline/internal/bill/repository"
	"github.com/wattlinehq/wattline/internal/config"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	consumptionrepository "github.com/wattlinehq/wattline/internal/consumption/repository"
	consumptionservice "github.com/wattlinehq/wattline/internal/consumption/service"
	"github.com/wattlinehq/wattline/internal/tariff"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
	userrepository "github.com/wattlinehq/wattline/internal/user/repository"
)

type billFixture struct {
	svc      billdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	customer userdomain.User
}

func newBillFixture(t *testing.T, dsn string) *billFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&userdomain.User{},
		&billdomain.Bill{},
		&consumptiondomain.Aggregate{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()

	holder, err := config.NewTariffHolder()
	require.NoError(t, err)

	ledger := consumptionservice.New(consumptionservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  consumptionrepository.Provide(),
	})

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       repository.Provide(),
		Users:      userrepository.Provide(),
		Ledger:     ledger,
		Calculator: tariff.NewCalculator(holder),
	})

	customer := userdomain.User{
		ID:           node.Generate(),
		Name:         "Asha Rao",
		Email:        "asha@example.com",
		PasswordHash: "x",
		Role:         userdomain.RoleCustomer,
	}
	require.NoError(t, db.Create(&customer).Error)

	return &billFixture{svc: svc, db: db, node: node, customer: customer}
}

func (f *billFixture) aggregateFor(t *testing.T, customerID snowflake.ID, year, month int) *consumptiondomain.Aggregate {
	t.Helper()

	var rows []consumptiondomain.Aggregate
	err := f.db.
		Where("customer_id = ? AND year = ? AND month = ?", customerID, year, month).
		Find(&rows).Error
	require.NoError(t, err)
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

func TestBillService_CreateCreditsLedger(t *testing.T) {
	f := newBillFixture(t, "file:bill_create?mode=memory&cache=shared")
	ctx := context.Background()

	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      250,
	})
	require.NoError(t, err)

	assert.Equal(t, 2199.00, bill.Amount)
	assert.Equal(t, billdomain.StatusUnpaid, bill.Status)
	assert.Equal(t, bill.IssueDate.AddDate(0, 0, 15), bill.DueDate)

	year, month := bill.Period()
	agg := f.aggregateFor(t, f.customer.ID, year, month)
	require.NotNil(t, agg)
	assert.Equal(t, 250.0, agg.Units)
}

func TestBillService_CreateAccumulatesPeriod(t *testing.T) {
	f := newBillFixture(t, "file:bill_accumulate?mode=memory&cache=shared")
	ctx := context.Background()

	issued := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, units := range []float64{100, 150} {
		_, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
			CustomerID: f.customer.ID.String(),
			Units:      units,
			IssueDate:  &issued,
		})
		require.NoError(t, err)
	}

	agg := f.aggregateFor(t, f.customer.ID, 2026, 3)
	require.NotNil(t, agg)
	assert.Equal(t, 250.0, agg.Units)
}

func TestBillService_CreateRejectsUnknownCustomer(t *testing.T) {
	f := newBillFixture(t, "file:bill_unknown_customer?mode=memory&cache=shared")

	_, err := f.svc.Create(context.Background(), billdomain.CreateBillRequest{
		CustomerID: f.node.Generate().String(),
		Units:      100,
	})
	assert.ErrorIs(t, err, billdomain.ErrCustomerNotFound)
}

func TestBillService_CreateRejectsInvalidUnits(t *testing.T) {
	f := newBillFixture(t, "file:bill_invalid_units?mode=memory&cache=shared")

	_, err := f.svc.Create(context.Background(), billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      -5,
	})
	assert.ErrorIs(t, err, billdomain.ErrInvalidUnits)
}

func TestBillService_UpdateUnitsCorrectsLedger(t *testing.T) {
	f := newBillFixture(t, "file:bill_update_units?mode=memory&cache=shared")
	ctx := context.Background()

	issued := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      100,
		IssueDate:  &issued,
	})
	require.NoError(t, err)
	assert.Equal(t, 567.00, bill.Amount)

	newUnits := 400.0
	result, err := f.svc.Update(ctx, billdomain.UpdateBillRequest{
		ID:    bill.ID.String(),
		Units: &newUnits,
	})
	require.NoError(t, err)

	assert.Equal(t, 400.0, result.Bill.Units)
	// The stored amount stays put when only units change; the drift is
	// reported, not repaired.
	assert.Equal(t, 567.00, result.Bill.Amount)
	assert.Equal(t, 4150.00, result.TariffAmount)
	assert.True(t, result.AmountDiverged)

	agg := f.aggregateFor(t, f.customer.ID, 2026, 4)
	require.NotNil(t, agg)
	assert.Equal(t, 400.0, agg.Units)
}

func TestBillService_UpdateAmountOverrideIsFlagged(t *testing.T) {
	f := newBillFixture(t, "file:bill_update_amount?mode=memory&cache=shared")
	ctx := context.Background()

	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      300,
	})
	require.NoError(t, err)

	override := 1000.00
	result, err := f.svc.Update(ctx, billdomain.UpdateBillRequest{
		ID:     bill.ID.String(),
		Amount: &override,
	})
	require.NoError(t, err)

	assert.Equal(t, 1000.00, result.Bill.Amount)
	assert.Equal(t, 2749.00, result.TariffAmount)
	assert.True(t, result.AmountDiverged)

	// Ledger untouched: units did not change.
	year, month := bill.Period()
	agg := f.aggregateFor(t, f.customer.ID, year, month)
	require.NotNil(t, agg)
	assert.Equal(t, 300.0, agg.Units)
}

func TestBillService_UpdateRejectsBadStatus(t *testing.T) {
	f := newBillFixture(t, "file:bill_bad_status?mode=memory&cache=shared")
	ctx := context.Background()

	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      100,
	})
	require.NoError(t, err)

	bad := "overdue"
	_, err = f.svc.Update(ctx, billdomain.UpdateBillRequest{
		ID:     bill.ID.String(),
		Status: &bad,
	})
	assert.ErrorIs(t, err, billdomain.ErrInvalidStatus)
}

func TestBillService_DeleteDebitsLedger(t *testing.T) {
	f := newBillFixture(t, "file:bill_delete?mode=memory&cache=shared")
	ctx := context.Background()

	issued := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      250,
		IssueDate:  &issued,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, bill.ID.String()))

	var count int64
	require.NoError(t, f.db.Model(&billdomain.Bill{}).Where("id = ?", bill.ID).Count(&count).Error)
	assert.Zero(t, count)

	// The period's only bill is gone, so its aggregate row must be too.
	assert.Nil(t, f.aggregateFor(t, f.customer.ID, 2026, 5))
}

func TestBillService_DeleteLeavesSiblingUnits(t *testing.T) {
	f := newBillFixture(t, "file:bill_delete_sibling?mode=memory&cache=shared")
	ctx := context.Background()

	issued := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	first, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      100,
		IssueDate:  &issued,
	})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      150,
		IssueDate:  &issued,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, first.ID.String()))

	agg := f.aggregateFor(t, f.customer.ID, 2026, 6)
	require.NotNil(t, agg)
	assert.Equal(t, 150.0, agg.Units)
}

func TestBillService_GetOwnedHidesForeignBills(t *testing.T) {
	f := newBillFixture(t, "file:bill_get_owned?mode=memory&cache=shared")
	ctx := context.Background()

	other := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Vikram Shetty",
		Email:        "vikram@example.com",
		PasswordHash: "x",
		Role:         userdomain.RoleCustomer,
	}
	require.NoError(t, f.db.Create(&other).Error)

	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      100,
	})
	require.NoError(t, err)

	_, err = f.svc.GetOwned(ctx, other.ID, bill.ID)
	assert.ErrorIs(t, err, billdomain.ErrNotFound)

	got, err := f.svc.GetOwned(ctx, f.customer.ID, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, got.ID)
}

func TestBillService_SettleAllUnpaid(t *testing.T) {
	f := newBillFixture(t, "file:bill_settle_all?mode=memory&cache=shared")
	ctx := context.Background()

	for _, units := range []float64{100, 300} {
		_, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
			CustomerID: f.customer.ID.String(),
			Units:      units,
		})
		require.NoError(t, err)
	}

	var settled []billdomain.Bill
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		settled, err = f.svc.SettleAllUnpaid(ctx, tx, f.customer.ID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, settled, 2)
	assert.Equal(t, 567.00+2749.00, settled[0].Amount+settled[1].Amount)

	var remaining int64
	require.NoError(t, f.db.Model(&billdomain.Bill{}).
		Where("customer_id = ? AND status = ?", f.customer.ID, billdomain.StatusUnpaid).
		Count(&remaining).Error)
	assert.Zero(t, remaining)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		again, err := f.svc.SettleAllUnpaid(ctx, tx, f.customer.ID)
		assert.Empty(t, again)
		return err
	})
	require.NoError(t, err)
}

func TestBillService_SettleBillRepeatIsNoop(t *testing.T) {
	f := newBillFixture(t, "file:bill_settle_repeat?mode=memory&cache=shared")
	ctx := context.Background()

	bill, err := f.svc.Create(ctx, billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      100,
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.SettleBill(ctx, tx, f.customer.ID, bill.ID)
		return err
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		settled, err := f.svc.SettleBill(ctx, tx, f.customer.ID, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, billdomain.StatusPaid, settled.Status)
		return nil
	})
	require.NoError(t, err)
}
