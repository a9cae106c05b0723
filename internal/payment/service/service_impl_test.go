package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	billrepository "github.com/wattlinehq/wattline/internal/bill/repository"
	billservice "github.com/wattlinehq/wattline/internal/bill/service"
	"github.com/wattlinehq/wattline/internal/config"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	consumptionrepository "github.com/wattlinehq/wattline/internal/consumption/repository"
	consumptionservice "github.com/wattlinehq/wattline/internal/consumption/service"
	"github.com/wattlinehq/wattline/internal/gateway/razorpay"
	"github.com/wattlinehq/wattline/internal/payment/domain"
	"github.com/wattlinehq/wattline/internal/payment/repository"
	"github.com/wattlinehq/wattline/internal/tariff"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
	userrepository "github.com/wattlinehq/wattline/internal/user/repository"
)

const testSecret = "test_secret"

type fakeGateway struct {
	orders int
	fail   bool
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (*razorpay.Order, error) {
	if g.fail {
		return nil, fmt.Errorf("connect: refused")
	}
	g.orders++
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", g.orders),
		Amount:   int64(math.Round(amount * 100)),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return razorpay.VerifySignature(testSecret, orderID, paymentID, signature)
}

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type paymentFixture struct {
	svc      domain.Service
	bills    billdomain.Service
	db       *gorm.DB
	node     *snowflake.Node
	gateway  *fakeGateway
	customer userdomain.User
}

func newPaymentFixture(t *testing.T, dsn string) *paymentFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&userdomain.User{},
		&billdomain.Bill{},
		&consumptiondomain.Aggregate{},
		&domain.Payment{},
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
	bills := billservice.New(billservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       billrepository.Provide(),
		Users:      userrepository.Provide(),
		Ledger:     ledger,
		Calculator: tariff.NewCalculator(holder),
	})

	gateway := &fakeGateway{}
	svc := New(Params{
		Config:  config.Config{GatewayKeyID: "key_id"},
		DB:      db,
		Log:     log,
		GenID:   node,
		Repo:    repository.Provide(),
		Bills:   bills,
		Users:   userrepository.Provide(),
		Gateway: gateway,
	})

	customer := userdomain.User{
		ID:           node.Generate(),
		Name:         "Asha Rao",
		Email:        "asha@example.com",
		PasswordHash: "x",
		Role:         userdomain.RoleCustomer,
	}
	require.NoError(t, db.Create(&customer).Error)

	return &paymentFixture{
		svc:      svc,
		bills:    bills,
		db:       db,
		node:     node,
		gateway:  gateway,
		customer: customer,
	}
}

func (f *paymentFixture) createBill(t *testing.T, units float64) *billdomain.Bill {
	t.Helper()

	bill, err := f.bills.Create(context.Background(), billdomain.CreateBillRequest{
		CustomerID: f.customer.ID.String(),
		Units:      units,
	})
	require.NoError(t, err)
	return bill
}

func (f *paymentFixture) billStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()

	var bill billdomain.Bill
	require.NoError(t, f.db.Where("id = ?", id).First(&bill).Error)
	return bill.Status
}

func (f *paymentFixture) paymentCount(t *testing.T) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&count).Error)
	return count
}

func TestPaymentService_CreateOrderSingleBill(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_order_single?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	resp, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerID: f.customer.ID,
		BillRef:    bill.ID.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, "order_1", resp.OrderID)
	assert.Equal(t, 2199.00, resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "key_id", resp.KeyID)
}

func TestPaymentService_CreateOrderAllSumsUnpaid(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_order_all?mode=memory&cache=shared")
	f.createBill(t, 100)
	f.createBill(t, 300)

	resp, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerID: f.customer.ID,
		BillRef:    domain.BillRefAll,
	})
	require.NoError(t, err)
	assert.Equal(t, 567.00+2749.00, resp.Amount)
}

func TestPaymentService_CreateOrderNoUnpaid(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_order_none?mode=memory&cache=shared")

	_, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerID: f.customer.ID,
		BillRef:    domain.BillRefAll,
	})
	assert.ErrorIs(t, err, billdomain.ErrNoUnpaidBills)
}

func TestPaymentService_CreateOrderGatewayDown(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_order_down?mode=memory&cache=shared")
	bill := f.createBill(t, 100)
	f.gateway.fail = true

	_, err := f.svc.CreateOrder(context.Background(), domain.CreateOrderRequest{
		CustomerID: f.customer.ID,
		BillRef:    bill.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrGateway)
}

func TestPaymentService_VerifySettlesSingleBill(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_single?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	payment, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2199.00, payment.Amount)
	assert.Equal(t, "asha@example.com", payment.CustomerEmail)
	assert.Equal(t, domain.StatusCompleted, payment.Status)
	assert.Equal(t, billdomain.StatusPaid, f.billStatus(t, bill.ID))
}

func TestPaymentService_VerifyRecordsOnAlreadyPaidBill(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_paid_bill?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	first, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	})
	require.NoError(t, err)

	// A second checkout for the same bill carries its own order and gateway
	// payment id. The signature already verified, so the payment must land
	// even though the bill transition is a no-op.
	second, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_2",
		GatewayPaymentID: "pay_2",
		Signature:        sign("order_2", "pay_2"),
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2199.00, second.Amount)
	assert.Equal(t, billdomain.StatusPaid, f.billStatus(t, bill.ID))
	assert.Equal(t, int64(2), f.paymentCount(t))
}

func TestPaymentService_VerifyAllRecordsNumericTotal(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_all?mode=memory&cache=shared")
	first := f.createBill(t, 100)
	second := f.createBill(t, 300)

	payment, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          domain.BillRefAll,
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 567.00+2749.00, payment.Amount)
	assert.Equal(t, domain.BillRefAll, payment.BillRef)
	assert.Equal(t, billdomain.StatusPaid, f.billStatus(t, first.ID))
	assert.Equal(t, billdomain.StatusPaid, f.billStatus(t, second.ID))
}

func TestPaymentService_VerifyReplayIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_replay?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	req := domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	}

	first, err := f.svc.VerifyAndRecord(context.Background(), req)
	require.NoError(t, err)

	second, err := f.svc.VerifyAndRecord(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), f.paymentCount(t))
}

func TestPaymentService_VerifyRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_badsig?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	_, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "forged",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	// A rejected callback must leave nothing behind.
	assert.Equal(t, billdomain.StatusUnpaid, f.billStatus(t, bill.ID))
	assert.Zero(t, f.paymentCount(t))
}

func TestPaymentService_VerifyHidesForeignBills(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_verify_foreign?mode=memory&cache=shared")
	bill := f.createBill(t, 250)

	other := userdomain.User{
		ID:           f.node.Generate(),
		Name:         "Vikram Shetty",
		Email:        "vikram@example.com",
		PasswordHash: "x",
		Role:         userdomain.RoleCustomer,
	}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       other.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, billdomain.ErrNotFound)

	assert.Equal(t, billdomain.StatusUnpaid, f.billStatus(t, bill.ID))
	assert.Zero(t, f.paymentCount(t))
}

func TestPaymentService_GetOwned(t *testing.T) {
	f := newPaymentFixture(t, "file:pay_get_owned?mode=memory&cache=shared")
	bill := f.createBill(t, 100)

	payment, err := f.svc.VerifyAndRecord(context.Background(), domain.VerifyRequest{
		CustomerID:       f.customer.ID,
		BillRef:          bill.ID.String(),
		OrderID:          "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("order_1", "pay_1"),
	})
	require.NoError(t, err)

	got, err := f.svc.GetOwned(context.Background(), f.customer.ID, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = f.svc.GetOwned(context.Background(), f.node.Generate(), payment.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
