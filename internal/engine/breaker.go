package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/storage"
)

// ErrCircuitOpen is returned when the write breaker is open and rejects
// writes until the store has had time to recover.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// WriteBreaker wraps gobreaker around store writes. Only storage I/O failures
// count toward tripping it: a rejected input or a missing post says nothing
// about the health of the database file.
//
// One WriteBreaker is shared by every Dashboard in the process.
type WriteBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewWriteBreaker creates a breaker that opens after cfg.MaxFailures
// consecutive storage failures and half-opens after cfg.OpenTimeout.
func NewWriteBreaker(cfg config.BreakerConfig, logger *zap.Logger) *WriteBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        "store-writes",
		MaxRequests: 1,
		Interval:    0, // counts only reset on state change
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			var ioErr *storage.StorageIOError
			return err == nil || !errors.As(err, &ioErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &WriteBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker.
func (b *WriteBreaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *WriteBreaker) State() string {
	return b.breaker.State().String()
}

// defaultBreaker backs dashboards constructed without one.
func defaultBreaker(logger *zap.Logger) *WriteBreaker {
	return NewWriteBreaker(config.BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second}, logger)
}
