package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverMind-orz/identity-kit/internal/jobs"
)

func TestEnqueueRunsJob(t *testing.T) {
	d := jobs.New(8, 1)

	ran := make(chan struct{})

	err := d.Enqueue("test", func(_ context.Context) error {
		close(ran)

		return nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}

	assert.NoError(t, d.Stop(context.Background()))
}

func TestSingleWorkerKeepsOrder(t *testing.T) {
	d := jobs.New(16, 1)

	var (
		mu  sync.Mutex
		got []int
	)

	for i := 0; i < 5; i++ {
		n := i

		err := d.Enqueue("ordered", func(_ context.Context) error {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()

			return nil
		})
		require.NoError(t, err)
	}

	// Stop drains the queue before returning
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestEnqueueNilJob(t *testing.T) {
	d := jobs.New(1, 1)

	err := d.Enqueue("test", nil)
	assert.ErrorIs(t, err, jobs.ErrNilJob)

	assert.NoError(t, d.Stop(context.Background()))
}

func TestQueueFull(t *testing.T) {
	d := jobs.New(1, 1)

	var (
		started = make(chan struct{})
		gate    = make(chan struct{})
	)

	// occupies the single worker until the gate opens
	err := d.Enqueue("full", func(_ context.Context) error {
		close(started)
		<-gate

		return nil
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not pick up the first job")
	}

	// fills the buffer of size one
	err = d.Enqueue("full", func(_ context.Context) error { return nil })
	require.NoError(t, err)

	// no room left
	err = d.Enqueue("full", func(_ context.Context) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrQueueFull)

	close(gate)
	assert.NoError(t, d.Stop(context.Background()))
}

func TestFailingJobDoesNotKillWorker(t *testing.T) {
	d := jobs.New(8, 1)

	ran := make(chan struct{})

	err := d.Enqueue("test", func(_ context.Context) error {
		return errors.New("boom") //nolint:goerr113
	})
	require.NoError(t, err)

	err = d.Enqueue("test", func(_ context.Context) error {
		close(ran)

		return nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a failing job")
	}

	assert.NoError(t, d.Stop(context.Background()))
}

func TestEnqueueAfterStop(t *testing.T) {
	d := jobs.New(1, 1)

	require.NoError(t, d.Stop(context.Background()))

	err := d.Enqueue("test", func(_ context.Context) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrStopped)

	// second stop is a no op
	assert.NoError(t, d.Stop(context.Background()))
}

func TestStopWaitsForRunningJob(t *testing.T) {
	d := jobs.New(1, 1)

	var (
		started  = make(chan struct{})
		finished = make(chan struct{})
	)

	err := d.Enqueue("slow", func(_ context.Context) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		close(finished)

		return nil
	})
	require.NoError(t, err)

	<-started

	require.NoError(t, d.Stop(context.Background()))

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}
