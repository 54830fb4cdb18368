package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor_CoversEveryIndexOnce(t *testing.T) {
	for _, n := range []int{1, 7, 16, 17, 1000} {
		hits := make([]int32, n)
		err := For(context.Background(), n, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			assert.Equalf(t, int32(1), h, "n=%d index %d", n, i)
		}
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	err := For(context.Background(), 0, func(start, end int) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestFor_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := For(context.Background(), 500, func(start, end int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestFor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	err := For(ctx, 500, func(start, end int) error {
		ran.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), ran.Load())
}

func TestFor_WithWorkersLimitsConcurrency(t *testing.T) {
	ctx := WithWorkers(context.Background(), 1)
	assert.Equal(t, 1, Workers(ctx))
	assert.Equal(t, 1, Workers(WithWorkers(context.Background(), -4)))

	var calls int32
	err := For(ctx, 1000, func(start, end int) error {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 1000, end)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)
}
