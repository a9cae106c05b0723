package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/wattlinehq/wattline/internal/auth/token"
	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	"github.com/wattlinehq/wattline/internal/config"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	"github.com/wattlinehq/wattline/internal/observability"
	obsmiddleware "github.com/wattlinehq/wattline/internal/observability/logger"
	obsmetrics "github.com/wattlinehq/wattline/internal/observability/metrics"
	obstracing "github.com/wattlinehq/wattline/internal/observability/tracing"
	paymentdomain "github.com/wattlinehq/wattline/internal/payment/domain"
	"github.com/wattlinehq/wattline/internal/providers/pdf"
	"github.com/wattlinehq/wattline/internal/tariff"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	tokens         *token.Issuer
	userSvc        userdomain.Service
	billSvc        billdomain.Service
	consumptionSvc consumptiondomain.Service
	paymentSvc     paymentdomain.Service
	calculator     *tariff.Calculator
	receipts       pdf.Renderer
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	Tokens         *token.Issuer
	UserSvc        userdomain.Service
	BillSvc        billdomain.Service
	ConsumptionSvc consumptiondomain.Service
	PaymentSvc     paymentdomain.Service
	Calculator     *tariff.Calculator
	Receipts       pdf.Renderer
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		tokens:         p.Tokens,
		userSvc:        p.UserSvc,
		billSvc:        p.BillSvc,
		consumptionSvc: p.ConsumptionSvc,
		paymentSvc:     p.PaymentSvc,
		calculator:     p.Calculator,
		receipts:       p.Receipts,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAuthRoutes()
	s.RegisterAdminRoutes()
	s.RegisterCustomerRoutes()
}

func (s *Server) RegisterAuthRoutes() {
	authGroup := s.engine.Group("/auth")
	authGroup.POST("/register", s.Register)
	authGroup.POST("/login", s.Login)
	authGroup.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.AuthRequired(), s.RequireRole(userdomain.RoleAdmin))

	admin.POST("/bills", s.CreateBill)
	admin.GET("/bills", s.ListBills)
	admin.PATCH("/bills/:id", s.UpdateBill)
	admin.DELETE("/bills/:id", s.DeleteBill)

	admin.GET("/customers", s.ListCustomers)
	admin.GET("/customers/:id", s.GetCustomer)
	admin.PATCH("/customers/:id", s.UpdateCustomer)

	admin.GET("/consumption/audit", s.AuditConsumption)
}

func (s *Server) RegisterCustomerRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())
	api.GET("/tariff/preview", s.PreviewTariff)

	customer := api.Group("/customer", s.RequireRole(userdomain.RoleCustomer))
	customer.GET("/bills", s.ListOwnBills)
	customer.GET("/consumption", s.ListOwnConsumption)
	customer.GET("/payments", s.ListOwnPayments)
	customer.GET("/payments/:id/receipt", s.DownloadReceipt)
	customer.POST("/orders", s.CreateOrder)
	customer.POST("/payments/verify", s.VerifyPayment)
}
