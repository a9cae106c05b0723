package bill

import (
	"go.uber.org/fx"

	"github.com/wattlinehq/wattline/internal/bill/repository"
	"github.com/wattlinehq/wattline/internal/bill/service"
)

var Module = fx.Module("bill.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
