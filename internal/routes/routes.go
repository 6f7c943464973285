package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/congo-pay/ledger-replay/internal/config"
	"github.com/congo-pay/ledger-replay/internal/middleware"
	"github.com/congo-pay/ledger-replay/internal/report"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Report *report.Report
	Logger *slog.Logger
}

// Setup configures middlewares and the read-only report routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Report == nil {
		return fmt.Errorf("report is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	RegisterReportRoutes(api, report.NewHandler(d.Report))

	return nil
}
