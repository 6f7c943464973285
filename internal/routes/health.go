package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds a liveness endpoint. The report is immutable, so
// a running server is always ready.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":       "ok",
			"app":          d.Cfg.AppName,
			"run_id":       d.Report.RunID(),
			"completed_at": d.Report.CompletedAt().Format(time.RFC3339Nano),
			"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
