package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/ledger-replay/internal/config"
	"github.com/congo-pay/ledger-replay/internal/csvio"
	"github.com/congo-pay/ledger-replay/internal/infra"
	"github.com/congo-pay/ledger-replay/internal/logging"
	"github.com/congo-pay/ledger-replay/internal/notification"
	"github.com/congo-pay/ledger-replay/internal/replay"
	"github.com/congo-pay/ledger-replay/internal/report"
	"github.com/congo-pay/ledger-replay/internal/server"
)

const usage = "usage: replay INPUT_FILE > accounts.csv"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run replays the history named by args and writes account balances to
// stdout. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	logger := logging.NewWithWriter(stderr, cfg.LogLevel).With(slog.String("app", cfg.AppName))

	input, err := os.Open(args[0])
	if err != nil {
		logger.Error("open input", "error", err)
		return 1
	}
	defer input.Close()

	// Checkpoints and notifications are best effort: the replay runs without
	// them when their backend is unavailable.
	store, closeStore, err := infra.OpenSnapshotStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open snapshot store, continuing without snapshots", "backend", cfg.SnapshotBackend, "error", err)
		store = nil
	}
	defer closeStore()

	notifier, closeNotifier, err := infra.OpenNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Error("open notifier, falling back to log notifications", "error", err)
		notifier = notification.NewLoggerNotifier(logger)
	}
	defer closeNotifier()

	opts := replay.Options{
		RunID:           uuid.NewString(),
		SnapshotTimeout: cfg.SnapshotTimeout,
		Resume:          cfg.Resume,
	}
	if cfg.SnapshotsEnabled() {
		opts.SnapshotEvery = cfg.SnapshotInterval
	}

	runner := replay.NewRunner(csvio.NewReader(input, logger), store, opts, logger).WithNotifier(notifier)
	res, err := runner.Run(ctx)
	if err != nil {
		logger.Error("replay failed", "error", err)
		return 1
	}

	if err := csvio.WriteAccounts(stdout, res.Accounts); err != nil {
		logger.Error("write accounts", "error", err)
		return 1
	}

	if cfg.ReportAddress() == "" {
		return 0
	}
	return serveReport(ctx, cfg, report.New(res, time.Now()), logger)
}

// serveReport blocks until ctx is cancelled or the server fails.
func serveReport(ctx context.Context, cfg config.Config, rep *report.Report, logger *slog.Logger) int {
	srv, err := server.New(cfg, rep, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		return 1
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
		return 0
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}

	logger.Info("server exited cleanly")
	return 0
}
