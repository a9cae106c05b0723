package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wattlinehq/wattline/internal/auth/token"
	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	billrepository "github.com/wattlinehq/wattline/internal/bill/repository"
	billservice "github.com/wattlinehq/wattline/internal/bill/service"
	"github.com/wattlinehq/wattline/internal/config"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	consumptionrepository "github.com/wattlinehq/wattline/internal/consumption/repository"
	consumptionservice "github.com/wattlinehq/wattline/internal/consumption/service"
	"github.com/wattlinehq/wattline/internal/gateway/razorpay"
	"github.com/wattlinehq/wattline/internal/observability"
	paymentdomain "github.com/wattlinehq/wattline/internal/payment/domain"
	paymentrepository "github.com/wattlinehq/wattline/internal/payment/repository"
	paymentservice "github.com/wattlinehq/wattline/internal/payment/service"
	"github.com/wattlinehq/wattline/internal/providers/pdf"
	"github.com/wattlinehq/wattline/internal/tariff"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
	userrepository "github.com/wattlinehq/wattline/internal/user/repository"
	userservice "github.com/wattlinehq/wattline/internal/user/service"
)

type stubGateway struct{ orders int }

func (g *stubGateway) CreateOrder(ctx context.Context, amount float64, currency, receipt string) (*razorpay.Order, error) {
	g.orders++
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", g.orders),
		Amount:   int64(math.Round(amount * 100)),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == "valid:"+orderID+"|"+paymentID
}

func newTestServer(t *testing.T, dsn string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&billdomain.Bill{},
		&consumptiondomain.Aggregate{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.Config{AppName: "wattline", GatewayKeyID: "key_id"}

	holder, err := config.NewTariffHolder()
	require.NoError(t, err)
	calculator := tariff.NewCalculator(holder)

	issuer, err := token.NewIssuer("server-test-secret", time.Hour)
	require.NoError(t, err)

	userSvc := userservice.New(userservice.Params{
		DB: db, Log: log, GenID: node, Repo: userrepository.Provide(),
	})
	ledger := consumptionservice.New(consumptionservice.Params{
		DB: db, Log: log, GenID: node, Repo: consumptionrepository.Provide(),
	})
	billSvc := billservice.New(billservice.Params{
		DB: db, Log: log, GenID: node,
		Repo:       billrepository.Provide(),
		Users:      userrepository.Provide(),
		Ledger:     ledger,
		Calculator: calculator,
	})
	paymentSvc := paymentservice.New(paymentservice.Params{
		Config: cfg, DB: db, Log: log, GenID: node,
		Repo:    paymentrepository.Provide(),
		Bills:   billSvc,
		Users:   userrepository.Provide(),
		Gateway: &stubGateway{},
	})

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	srv := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		DB:             db,
		GenID:          node,
		Tokens:         issuer,
		UserSvc:        userSvc,
		BillSvc:        billSvc,
		ConsumptionSvc: ledger,
		PaymentSvc:     paymentSvc,
		Calculator:     calculator,
		Receipts:       pdf.NewRenderer(cfg),
	})
	registerRoutes(srv)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, srv *Server, name, email, role string) (string, string) {
	t.Helper()

	w := doJSON(t, srv, http.MethodPost, "/auth/register", "", gin.H{
		"name":     name,
		"email":    email,
		"password": "secret123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token, resp.Data.User.ID
}

func TestServer_AuthFlow(t *testing.T) {
	srv := newTestServer(t, "file:srv_auth?mode=memory&cache=shared")

	tok, _ := registerAndLogin(t, srv, "Asha Rao", "asha@example.com", "")

	w := doJSON(t, srv, http.MethodGet, "/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "asha@example.com")
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = doJSON(t, srv, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/auth/login", "", gin.H{
		"email":    "asha@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_RoleEnforcement(t *testing.T) {
	srv := newTestServer(t, "file:srv_roles?mode=memory&cache=shared")

	adminTok, _ := registerAndLogin(t, srv, "Admin", "admin@example.com", userdomain.RoleAdmin)
	customerTok, customerID := registerAndLogin(t, srv, "Asha Rao", "asha@example.com", "")

	// Customers cannot reach admin surfaces.
	w := doJSON(t, srv, http.MethodGet, "/api/admin/bills", customerTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admins cannot use the customer self-service surface.
	w = doJSON(t, srv, http.MethodGet, "/api/customer/bills", adminTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin issues a bill for the customer.
	w = doJSON(t, srv, http.MethodPost, "/api/admin/bills", adminTok, gin.H{
		"customer_id": customerID,
		"units":       250,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "2199")

	// The customer sees it on their own listing.
	w = doJSON(t, srv, http.MethodGet, "/api/customer/bills", customerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2199")
}

func TestServer_BillDeleteEchoesID(t *testing.T) {
	srv := newTestServer(t, "file:srv_bill_delete?mode=memory&cache=shared")

	adminTok, _ := registerAndLogin(t, srv, "Admin", "admin@example.com", userdomain.RoleAdmin)
	_, customerID := registerAndLogin(t, srv, "Asha Rao", "asha@example.com", "")

	w := doJSON(t, srv, http.MethodPost, "/api/admin/bills", adminTok, gin.H{
		"customer_id": customerID,
		"units":       100,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var billResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &billResp))

	w = doJSON(t, srv, http.MethodDelete, "/api/admin/bills/"+billResp.Data.ID, adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var delResp struct {
		Data struct {
			ID      string `json:"id"`
			Deleted bool   `json:"deleted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delResp))
	assert.Equal(t, billResp.Data.ID, delResp.Data.ID)
	assert.True(t, delResp.Data.Deleted)
}

func TestServer_TariffPreview(t *testing.T) {
	srv := newTestServer(t, "file:srv_preview?mode=memory&cache=shared")
	tok, _ := registerAndLogin(t, srv, "Asha Rao", "asha@example.com", "")

	w := doJSON(t, srv, http.MethodGet, "/api/tariff/preview?units=300", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2749")

	w = doJSON(t, srv, http.MethodGet, "/api/tariff/preview?units=abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/tariff/preview?units=0", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_PaymentRoundTrip(t *testing.T) {
	srv := newTestServer(t, "file:srv_payment?mode=memory&cache=shared")

	adminTok, _ := registerAndLogin(t, srv, "Admin", "admin@example.com", userdomain.RoleAdmin)
	customerTok, customerID := registerAndLogin(t, srv, "Asha Rao", "asha@example.com", "")

	w := doJSON(t, srv, http.MethodPost, "/api/admin/bills", adminTok, gin.H{
		"customer_id": customerID,
		"units":       250,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var billResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &billResp))

	w = doJSON(t, srv, http.MethodPost, "/api/customer/orders", customerTok, gin.H{
		"bill_id": billResp.Data.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var orderResp struct {
		Data struct {
			OrderID string  `json:"order_id"`
			Amount  float64 `json:"amount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orderResp))
	assert.Equal(t, 2199.00, orderResp.Data.Amount)

	w = doJSON(t, srv, http.MethodPost, "/api/customer/payments/verify", customerTok, gin.H{
		"bill_id":            billResp.Data.ID,
		"order_id":           orderResp.Data.OrderID,
		"gateway_payment_id": "pay_1",
		"signature":          "valid:" + orderResp.Data.OrderID + "|pay_1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, srv, http.MethodPost, "/api/customer/payments/verify", customerTok, gin.H{
		"bill_id":            billResp.Data.ID,
		"order_id":           orderResp.Data.OrderID,
		"gateway_payment_id": "pay_2",
		"signature":          "forged",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/customer/payments", customerTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pay_1")
}
