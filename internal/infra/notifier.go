package infra

import (
	"context"
	"log/slog"

	"github.com/congo-pay/ledger-replay/internal/config"
	"github.com/congo-pay/ledger-replay/internal/notification"
)

// OpenNotifier publishes on Redis when NOTIFY_CHANNEL is configured and
// otherwise falls back to logging notifications.
func OpenNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (notification.Notifier, func(), error) {
	if cfg.NotifyChannel == "" {
		return notification.NewLoggerNotifier(logger), func() {}, nil
	}

	client, err := NewRedisClient(ctx, cfg.RedisURL, cfg.AppName, cfg.SnapshotTimeout)
	if err != nil {
		return nil, func() {}, err
	}
	logger.Info("publishing notifications", slog.String("channel", cfg.NotifyChannel))
	return notification.NewRedisNotifier(client, cfg.NotifyChannel), func() { client.Close() }, nil
}
