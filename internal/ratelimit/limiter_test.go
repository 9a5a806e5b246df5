package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func allow(t *testing.T, l Limiter, key string) bool {
	t.Helper()
	ok, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestWindow_FourthRequestRejected(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWindow(Config{Max: 3, Window: time.Minute}, clk.Now)

	for i := 0; i < 3; i++ {
		require.True(t, allow(t, w, "10.0.0.1"), "request %d", i+1)
	}
	require.False(t, allow(t, w, "10.0.0.1"))
	require.True(t, allow(t, w, "10.0.0.2"), "keys are independent")
}

func TestWindow_ResetsAfterWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWindow(Config{Max: 3, Window: time.Minute}, clk.Now)

	for i := 0; i < 4; i++ {
		allow(t, w, "k")
	}
	clk.Advance(59 * time.Second)
	require.False(t, allow(t, w, "k"))

	clk.Advance(time.Second)
	require.True(t, allow(t, w, "k"), "window elapsed")
	require.True(t, allow(t, w, "k"))
	require.True(t, allow(t, w, "k"))
	require.False(t, allow(t, w, "k"), "counter restarted at the new window")
}

func TestWindow_Disabled(t *testing.T) {
	for _, cfg := range []Config{{Max: 0, Window: time.Minute}, {Max: 3, Window: 0}} {
		w := NewWindow(cfg, nil)
		for i := 0; i < 50; i++ {
			require.True(t, allow(t, w, "k"))
		}
		require.Zero(t, w.Len())
	}
}

func TestWindow_ResetMethod(t *testing.T) {
	w := NewWindow(Config{Max: 1, Window: time.Hour}, nil)
	require.True(t, allow(t, w, "k"))
	require.False(t, allow(t, w, "k"))

	w.Reset()
	require.Zero(t, w.Len())
	require.True(t, allow(t, w, "k"))
}

func TestWindow_SweepBoundsMemory(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	w := NewWindow(Config{Max: 5, Window: time.Second}, clk.Now)

	for i := 0; i < sweepEvery-1; i++ {
		allow(t, w, "k"+strconv.Itoa(i))
	}
	require.Equal(t, sweepEvery-1, w.Len())

	clk.Advance(2 * time.Second)
	allow(t, w, "fresh")
	assert.Equal(t, 1, w.Len(), "expired keys swept")
}

func TestWindow_ConcurrentCallersNeverExceedMax(t *testing.T) {
	w := NewWindow(Config{Max: 25, Window: time.Hour}, nil)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(context.Background(), "shared"); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 25, admitted.Load())
}
