package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/ledger-replay/internal/report"
)

// RegisterReportRoutes wires the account and stats endpoints.
func RegisterReportRoutes(r fiber.Router, h *report.Handler) {
	r.Get("/accounts", h.Accounts)
	r.Get("/accounts/:client", h.Account)
	r.Get("/stats", h.Stats)
}
