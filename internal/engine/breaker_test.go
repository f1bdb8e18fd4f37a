package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/config"
	"github.com/scrypster/forumlens/internal/storage"
)

var errDiskFull = &storage.StorageIOError{Op: "sqlite: save", Err: errors.New("database or disk is full")}

func TestWriteBreaker_TripsOnStorageFailures(t *testing.T) {
	b := NewWriteBreaker(config.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Do(ctx, func() error { return errDiskFull })
		assert.ErrorAs(t, err, new(*storage.StorageIOError))
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not run the write")
}

func TestWriteBreaker_IgnoresCallerErrors(t *testing.T) {
	b := NewWriteBreaker(config.BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Do(ctx, func() error { return storage.ErrNotFound })
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	assert.Equal(t, "closed", b.State())
}

func TestWriteBreaker_Recovers(t *testing.T) {
	b := NewWriteBreaker(config.BreakerConfig{MaxFailures: 1, OpenTimeout: 20 * time.Millisecond}, zap.NewNop())
	ctx := context.Background()

	_ = b.Do(ctx, func() error { return errDiskFull })
	assert.Equal(t, "open", b.State())

	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, b.Do(ctx, func() error { return nil }))
	assert.Equal(t, "closed", b.State())
}

func TestWriteBreaker_CancelledContext(t *testing.T) {
	b := NewWriteBreaker(config.BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func() error { t.Fatal("write ran on cancelled context"); return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", b.State())
}
