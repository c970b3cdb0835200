package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapperOpensAfterFailures(t *testing.T) {
	cfg := DefaultConfig("test-open")
	cfg.Timeout = time.Hour
	w := NewWrapper(cfg)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := w.Run(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())
	err := w.Run(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapperPassesResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-result"))

	result, err := w.ExecuteWithContext(context.Background(), func() (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestWrapperCancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := w.Run(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTripOnRatio(t *testing.T) {
	trip := TripOnRatio(4, 0.5)
	assert.False(t, trip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	assert.False(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
	assert.True(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
}
