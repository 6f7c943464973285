package report

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes report HTTP endpoints.
type Handler struct {
	report *Report
}

// NewHandler builds a report HTTP handler.
func NewHandler(report *Report) *Handler {
	return &Handler{report: report}
}

// Accounts lists all final balances.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	accounts := h.report.Accounts()
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"run_id":   h.report.RunID(),
		"count":    len(accounts),
		"accounts": accounts,
	})
}

// Account returns the balances of one client.
func (h *Handler) Account(c *fiber.Ctx) error {
	account, err := h.report.Account(c.Params("client"))
	switch {
	case errors.Is(err, ErrInvalidClient):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownClient):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case err != nil:
		return err
	}
	return c.Status(http.StatusOK).JSON(account)
}

// Stats returns the run counters.
func (h *Handler) Stats(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.report.Summary())
}
