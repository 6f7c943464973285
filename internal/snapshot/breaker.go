package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrStoreUnavailable is returned by a BreakerStore while its breaker is open.
var ErrStoreUnavailable = errors.New("snapshot store unavailable")

// BreakerStore guards Save with a circuit breaker. After maxFailures
// consecutive failed saves further saves fail fast until cooldown elapses,
// then a single trial save decides whether to close the breaker again.
// Load and Clear are passed through.
type BreakerStore struct {
	Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps store. maxFailures must be positive.
func NewBreakerStore(store Store, maxFailures uint32, cooldown time.Duration, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "snapshot-store",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerStore{Store: store, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Save forwards to the wrapped store unless the breaker is open.
func (b *BreakerStore) Save(ctx context.Context, snap Snapshot) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.Store.Save(ctx, snap)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerStore) State() string {
	return b.breaker.State().String()
}
