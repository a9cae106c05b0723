package user

import (
	"github.com/wattlinehq/wattline/internal/user/repository"
	"github.com/wattlinehq/wattline/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
