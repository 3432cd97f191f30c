package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompletesOnce(t *testing.T) {
	f, complete := NewFuture[string]()

	_, _, ok := f.Result()
	assert.False(t, ok)

	complete("first", nil)
	complete("second", errors.New("ignored"))

	value, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	value, err, ok = f.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	f, complete := NewFuture[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	complete(7, nil)
	value, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestCompleted(t *testing.T) {
	boom := errors.New("boom")
	f := Completed(0, boom)

	select {
	case <-f.Done():
	default:
		t.Fatal("completed future should be done")
	}

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)

	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.NoError(t, pool.Close())
}

func TestPoolClose(t *testing.T) {
	pool := NewPool(0)
	assert.Equal(t, 4, pool.Stats()["size"])

	var ran atomic.Bool
	require.NoError(t, pool.Submit(func() {
		time.Sleep(5 * time.Millisecond)
		ran.Store(true)
	}))

	require.NoError(t, pool.Close())
	assert.True(t, ran.Load(), "Close should wait for submitted tasks")

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	assert.NoError(t, pool.Close())
	assert.Equal(t, true, pool.Stats()["closed"])
}
