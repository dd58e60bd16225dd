package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueRunsHandler(t *testing.T) {
	done := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "check"}))

	select {
	case job := <-done:
		assert.Equal(t, "job-1", job.ID)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "job-1"}))
}

func TestQueueScheduleDelaysAndDeduplicates(t *testing.T) {
	var runs int32
	done := make(chan time.Time, 2)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&runs, 1)
		done <- time.Now()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	start := time.Now()
	require.NoError(t, q.Schedule(Job{ID: "a", Key: "req-1:1"}, 50*time.Millisecond))
	err := q.Schedule(Job{ID: "b", Key: "req-1:1"}, 10*time.Millisecond)
	require.True(t, errors.Is(err, ErrDuplicate))
	assert.Equal(t, 1, q.Pending())

	select {
	case ranAt := <-done:
		assert.GreaterOrEqual(t, ranAt.Sub(start), 50*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("scheduled job was not processed")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, 0, q.Pending())

	// the key is free again once the job has started
	require.NoError(t, q.Schedule(Job{ID: "c", Key: "req-1:1"}, time.Millisecond))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rescheduled job was not processed")
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan int, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("transient")
		}
		done <- job.Attempt
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Key: "k"}))

	select {
	case attempt := <-done:
		assert.Equal(t, 2, attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueStopCancelsTimers(t *testing.T) {
	var runs int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, QueueConfig{})
	q.Start(context.Background())

	require.NoError(t, q.Schedule(Job{ID: "late"}, 100*time.Millisecond))
	q.Stop()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}
