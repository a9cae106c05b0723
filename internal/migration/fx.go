package migration

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billdomain "github.com/wattlinehq/wattline/internal/bill/domain"
	"github.com/wattlinehq/wattline/internal/config"
	consumptiondomain "github.com/wattlinehq/wattline/internal/consumption/domain"
	paymentdomain "github.com/wattlinehq/wattline/internal/payment/domain"
	"github.com/wattlinehq/wattline/internal/seed"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are dev conveniences; let gorm derive the
			// schema instead of maintaining per-dialect SQL.
			if err := conn.AutoMigrate(
				&userdomain.User{},
				&billdomain.Bill{},
				&consumptiondomain.Aggregate{},
				&paymentdomain.Payment{},
			); err != nil {
				return err
			}
		}

		if cfg.BootstrapAdmin {
			return seed.EnsureDefaultAdmin(conn, cfg, log)
		}
		return nil
	}),
)
