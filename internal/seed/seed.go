package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wattlinehq/wattline/internal/auth/password"
	"github.com/wattlinehq/wattline/internal/config"
	userdomain "github.com/wattlinehq/wattline/internal/user/domain"
)

const defaultAdminName = "Wattline Admin"

// EnsureDefaultAdmin creates the bootstrap admin account when no admin
// exists yet. Without it a fresh install has no way to issue bills.
func EnsureDefaultAdmin(db *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if cfg.BootstrapAdminPassword == "" {
		log.Warn("bootstrap admin skipped, BOOTSTRAP_ADMIN_PASSWORD not set")
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userdomain.User{}).
			Where("role = ?", userdomain.RoleAdmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		hash, err := password.Hash(cfg.BootstrapAdminPassword)
		if err != nil {
			return err
		}

		admin := userdomain.User{
			ID:           node.Generate(),
			Name:         defaultAdminName,
			Email:        strings.ToLower(strings.TrimSpace(cfg.BootstrapAdminEmail)),
			PasswordHash: hash,
			Role:         userdomain.RoleAdmin,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}

		log.Info("bootstrap admin created", zap.String("email", admin.Email))
		return nil
	})
}
