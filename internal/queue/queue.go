// Package queue provides a single global FIFO queue serializing indexing
// and embedding work across every silo an orchestrator manages. A local
// embedder process (spec §4.3) has finite throughput; without one queue in
// front of it, concurrent reconciliation passes across several silos would
// contend for the same embedding calls with no ordering guarantee. Grounded
// on internal/async.BackgroundIndexer's stop-channel/done-channel lifecycle
// pattern, generalized from one background task to an ordered many-job
// queue.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Job is one unit of queued work, typically "reconcile and index silo X".
type Job struct {
	// ID identifies the job for cancellation lookups. Must be unique
	// among jobs currently queued or running.
	ID string

	// SiloID is the silo this job belongs to, surfaced in activity events.
	SiloID string

	// Run performs the work. Receives a context that is cancelled if the
	// job is cancelled while running, or if the queue is stopped.
	Run func(ctx context.Context) error
}

// Result reports one completed job's outcome.
type Result struct {
	JobID     string
	SiloID    string
	Err       error
	Cancelled bool
}

// Queue is a single-worker FIFO job queue with cooperative cancellation.
// Jobs run strictly in submission order; a cancelled queued job is removed
// without running, and a cancelled in-flight job has its context cancelled
// so Run can return early.
type Queue struct {
	mu       sync.Mutex
	pending  *list.List // of *Job
	queued   map[string]*list.Element
	running  *Job
	cancel   context.CancelFunc // cancels the currently-running job, if any
	notify   chan struct{}
	results  chan Result
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopped  bool
}

// New creates an empty queue. Call Run in a goroutine to start processing.
func New() *Queue {
	return &Queue{
		pending: list.New(),
		queued:  make(map[string]*list.Element),
		notify:  make(chan struct{}, 1),
		results: make(chan Result, 64),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue appends job to the back of the queue. Returns an error if a job
// with the same ID is already queued or running.
func (q *Queue) Enqueue(job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job must have a non-empty ID")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return fmt.Errorf("queue is stopped")
	}
	if _, exists := q.queued[job.ID]; exists {
		return fmt.Errorf("job %q is already queued", job.ID)
	}
	if q.running != nil && q.running.ID == job.ID {
		return fmt.Errorf("job %q is already running", job.ID)
	}

	elem := q.pending.PushBack(job)
	q.queued[job.ID] = elem

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Cancel removes jobID from the queue if it hasn't started yet, or cancels
// its context if it's currently running. Returns true if a job was found
// in either state.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if elem, ok := q.queued[jobID]; ok {
		q.pending.Remove(elem)
		delete(q.queued, jobID)
		q.results <- Result{JobID: jobID, SiloID: elem.Value.(*Job).SiloID, Cancelled: true}
		return true
	}
	if q.running != nil && q.running.ID == jobID {
		if q.cancel != nil {
			q.cancel()
		}
		return true
	}
	return false
}

// Len returns the number of jobs waiting to run (not counting one in flight).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Results returns the channel of completed/cancelled job outcomes.
func (q *Queue) Results() <-chan Result {
	return q.results
}

// Run processes jobs in FIFO order until ctx is cancelled or Stop is
// called. Intended to run in its own goroutine; safe to call only once.
func (q *Queue) Run(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	defer close(q.doneCh)

	for {
		job := q.dequeue()
		if job == nil {
			select {
			case <-q.notify:
				continue
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		jobCtx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.running = job
		q.cancel = cancel
		q.mu.Unlock()

		err := job.Run(jobCtx)

		q.mu.Lock()
		q.running = nil
		q.cancel = nil
		q.mu.Unlock()
		cancel()

		cancelled := jobCtx.Err() == context.Canceled
		q.results <- Result{JobID: job.ID, SiloID: job.SiloID, Err: err, Cancelled: cancelled}

		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (q *Queue) dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.pending.Front()
	if front == nil {
		return nil
	}
	q.pending.Remove(front)
	job := front.Value.(*Job)
	delete(q.queued, job.ID)
	return job
}

// Stop signals Run to exit after the in-flight job (if any) returns, and
// cancels that job's context so it doesn't block shutdown. Safe to call
// multiple times; blocks until Run has exited.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	close(q.stopCh)
	<-q.doneCh
}
