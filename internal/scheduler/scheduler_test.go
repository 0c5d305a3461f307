package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerTicksUntilCancelled(t *testing.T) {
	sched := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var ticks atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		ticks.Add(1)
		return nil
	})
	if err != context.DeadlineExceeded {
		t.Fatalf("Run should return the context error, got %v", err)
	}
	if n := ticks.Load(); n < 3 {
		t.Fatalf("ticks = %d, want several within 100ms", n)
	}
}

func TestSchedulerSkipsWhileTickRuns(t *testing.T) {
	sched := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	var started, concurrent, peak atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_ = sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		started.Add(1)
		if now := concurrent.Add(1); now > peak.Load() {
			peak.Store(now)
		}
		defer concurrent.Add(-1)

		// Slow pass spanning several intervals.
		time.Sleep(35 * time.Millisecond)
		return nil
	})

	if peak.Load() > 1 {
		t.Fatalf("ticks overlapped: peak concurrency %d", peak.Load())
	}
	if n := started.Load(); n == 0 || n > 4 {
		t.Fatalf("started = %d, want slow ticks to suppress intermediate buckets", n)
	}
}

func TestSchedulerAlignsBuckets(t *testing.T) {
	sched := New(Options{Interval: 20 * time.Millisecond, AlignToStart: true}, zerolog.Nop())

	var bucketNs atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_ = sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		bucketNs.Store(bucket.UnixNano())
		return nil
	})

	if got := bucketNs.Load(); got == 0 {
		t.Fatal("no aligned tick observed")
	} else if got%int64(20*time.Millisecond) != 0 {
		t.Fatalf("bucket %d not aligned to the interval", got)
	}
}
