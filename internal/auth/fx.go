package auth

import (
	"time"

	"go.uber.org/fx"

	"github.com/wattlinehq/wattline/internal/auth/token"
	"github.com/wattlinehq/wattline/internal/config"
)

var Module = fx.Module("auth",
	fx.Provide(provideIssuer),
)

func provideIssuer(cfg config.Config) (*token.Issuer, error) {
	return token.NewIssuer(cfg.AuthJWTSecret, time.Duration(cfg.AuthTokenTTLMin)*time.Minute)
}
