package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun_ProcessesEveryItem(t *testing.T) {
	pool := New(4)
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	var count int64
	Run(context.Background(), pool, items, func(_ context.Context, _ int) {
		atomic.AddInt64(&count, 1)
	})

	assert.EqualValues(t, len(items), count)
}

func TestRun_NeverExceedsConcurrency(t *testing.T) {
	pool := New(3)
	items := make([]int, 20)

	var inFlight int64
	var maxInFlight int64
	Run(context.Background(), pool, items, func(_ context.Context, _ int) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			max := atomic.LoadInt64(&maxInFlight)
			if cur <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
	})

	assert.LessOrEqual(t, int(maxInFlight), 3)
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	pool := New(2)
	items := make([]int, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var count int64
	Run(ctx, pool, items, func(_ context.Context, _ int) {
		atomic.AddInt64(&count, 1)
	})

	assert.LessOrEqual(t, int(count), 2, "at most the already-dispatched goroutines should run after cancellation")
}

func TestNew_ClampsNonPositiveConcurrency(t *testing.T) {
	pool := New(0)
	assert.Equal(t, 1, pool.concurrency)
}
