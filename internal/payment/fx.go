package payment

import (
	"go.uber.org/fx"

	"github.com/wattlinehq/wattline/internal/payment/repository"
	"github.com/wattlinehq/wattline/internal/payment/service"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
