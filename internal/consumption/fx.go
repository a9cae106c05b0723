package consumption

import (
	"github.com/wattlinehq/wattline/internal/consumption/repository"
	"github.com/wattlinehq/wattline/internal/consumption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consumption.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
