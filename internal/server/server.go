package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/ledger-replay/internal/config"
	"github.com/congo-pay/ledger-replay/internal/report"
	"github.com/congo-pay/ledger-replay/internal/routes"
)

// Server wraps the Fiber application serving a finished replay report.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	logger *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, rep *report.Report, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		// stdout carries the CSV report.
		DisableStartupMessage: true,
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, Report: rep, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger}, nil
}

// Listen starts the HTTP server on the configured report port.
func (s *Server) Listen() error {
	addr := s.cfg.ReportAddress()
	if addr == "" {
		return fmt.Errorf("report port is not configured")
	}
	s.logger.Info("report server listening", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
