// Package jobs runs fire and forget work on named in-process queues.
//
// Callers enqueue closures on a queue name ("email", "audit"), workers
// drain each queue in order of arrival. A full queue rejects instead of
// blocking the caller.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultQueueSize is used if New gets a queue size <= 0.
	DefaultQueueSize = 256

	// DefaultWorkers is used if New gets a worker count <= 0.
	DefaultWorkers = 2
)

var (
	// ErrStopped is returned by Enqueue after Stop was called.
	ErrStopped = errors.New("job dispatcher is stopped")

	// ErrQueueFull is returned by Enqueue if the queue buffer is exhausted.
	ErrQueueFull = errors.New("job queue is full")

	// ErrNilJob is returned by Enqueue for a nil job.
	ErrNilJob = errors.New("job can not be nil")
)

var (
	jobsProcessed = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Number of completed background jobs per queue.",
		},
		[]string{"queue"},
	)

	jobsFailed = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Number of failed background jobs per queue.",
		},
		[]string{"queue"},
	)
)

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Dispatcher owns the named queues and their workers.
// Queues are created lazily on first Enqueue.
type Dispatcher struct {
	mu      sync.Mutex
	queues  map[string]chan Job
	size    int
	workers int
	stopped bool

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a Dispatcher with the given buffer size and worker count per queue.
func New(queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		queues:  make(map[string]chan Job),
		size:    queueSize,
		workers: workers,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Enqueue places a job on the named queue.
// The first job on a queue spawns its workers.
func (d *Dispatcher) Enqueue(queue string, job Job) error {
	if job == nil {
		return ErrNilJob
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrStopped
	}

	ch, ok := d.queues[queue]
	if !ok {
		ch = make(chan Job, d.size)
		d.queues[queue] = ch

		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)

			go d.work(queue, ch)
		}
	}

	// non blocking send, the lock also guards against Stop closing ch here
	select {
	case ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes all queues and waits for the workers to drain them.
// If ctx expires first the contexts of still running jobs are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()

		return nil
	}

	d.stopped = true

	for _, ch := range d.queues {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})

	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()

		return nil
	case <-ctx.Done():
		d.cancel()

		return ctx.Err() //nolint:wrapcheck
	}
}

// work drains one queue until it is closed.
// A failing job is logged and counted, the worker keeps going.
func (d *Dispatcher) work(queue string, ch <-chan Job) {
	defer d.wg.Done()

	for job := range ch {
		if err := job(d.baseCtx); err != nil {
			jobsFailed.WithLabelValues(queue).Inc()
			log.Error().Err(err).Str("queue", queue).Msg("background job failed")

			continue
		}

		jobsProcessed.WithLabelValues(queue).Inc()
	}
}
