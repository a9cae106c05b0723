package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/wattlinehq/wattline/internal/auth"
	"github.com/wattlinehq/wattline/internal/bill"
	"github.com/wattlinehq/wattline/internal/config"
	"github.com/wattlinehq/wattline/internal/consumption"
	"github.com/wattlinehq/wattline/internal/gateway/razorpay"
	"github.com/wattlinehq/wattline/internal/migration"
	"github.com/wattlinehq/wattline/internal/observability"
	"github.com/wattlinehq/wattline/internal/payment"
	"github.com/wattlinehq/wattline/internal/providers/pdf"
	"github.com/wattlinehq/wattline/internal/server"
	"github.com/wattlinehq/wattline/internal/tariff"
	"github.com/wattlinehq/wattline/internal/user"
	"github.com/wattlinehq/wattline/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		auth.Module,
		tariff.Module,
		user.Module,
		consumption.Module,
		bill.Module,
		razorpay.Module,
		payment.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
