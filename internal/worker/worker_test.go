package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

func TestPoolRunsScheduledJobs(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		jobs        int
	}{
		{"single worker", 1, 3},
		{"multiple workers", 4, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(Config{Concurrency: tt.concurrency, QueueSize: tt.jobs}, zerolog.Nop())
			var (
				mu   sync.Mutex
				seen = map[string]bool{}
			)
			pool.Start(func(_ context.Context, job models.ReportJob) error {
				mu.Lock()
				seen[job.ID] = true
				mu.Unlock()
				return nil
			})

			for i := 0; i < tt.jobs; i++ {
				require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: string(rune('a' + i))}))
			}
			require.NoError(t, pool.Shutdown(context.Background()))

			mu.Lock()
			defer mu.Unlock()
			assert.Len(t, seen, tt.jobs)
		})
	}
}

func TestPoolScheduleAfterShutdown(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 1}, zerolog.Nop())
	pool.Start(func(context.Context, models.ReportJob) error { return nil })
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Schedule(context.Background(), models.ReportJob{ID: "late"})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestPoolQueueFull(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 1}, zerolog.Nop())
	// Not started: nothing drains the queue.
	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "1"}))
	assert.ErrorIs(t, pool.Schedule(context.Background(), models.ReportJob{ID: "2"}), ErrQueueFull)

	pool.Start(func(context.Context, models.ReportJob) error { return nil })
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolJobTimeout(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 1, JobTimeout: 20 * time.Millisecond}, zerolog.Nop())
	result := make(chan error, 1)
	pool.Start(func(ctx context.Context, _ models.ReportJob) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})

	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "stuck"}))
	select {
	case err := <-result:
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	case <-time.After(5 * time.Second):
		t.Fatal("job deadline was not applied")
	}
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolShutdownDeadlineCancelsRunningJobs(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 1}, zerolog.Nop())
	started := make(chan struct{})
	pool.Start(func(ctx context.Context, _ models.ReportJob) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "long"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPoolShutdownAbandonsJobsIgnoringCancellation(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 1, CancelGrace: 50 * time.Millisecond}, zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	pool.Start(func(_ context.Context, _ models.ReportJob) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "stubborn"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- pool.Shutdown(ctx) }()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked on a job that ignores cancellation")
	}
}

func TestPoolRecoversFromPanics(t *testing.T) {
	pool := NewPool(Config{Concurrency: 1, QueueSize: 2}, zerolog.Nop())
	var ran atomic.Int32
	pool.Start(func(_ context.Context, job models.ReportJob) error {
		ran.Add(1)
		if job.ID == "boom" {
			panic("boom")
		}
		return nil
	})

	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "boom"}))
	require.NoError(t, pool.Schedule(context.Background(), models.ReportJob{ID: "ok"}))
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}
