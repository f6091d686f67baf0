package tasks

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Queue hands accepted asks to a fixed worker pool over a buffered channel.
// Delivery is at-most-once: a task either reaches a worker or is rejected
// at enqueue time, and Shutdown drains in-flight work so accepted tasks
// are never silently dropped.
type Queue struct {
	tasks chan Task
	wg    sync.WaitGroup
	proc  *Processor

	mu     sync.Mutex
	closed bool
}

// NewQueue starts workers consuming from a buffer of the given size.
func NewQueue(proc *Processor, workers, buffer int) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 256
	}
	q := &Queue{
		tasks: make(chan Task, buffer),
		proc:  proc,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		// Detached work must not inherit the request's context: it is
		// allowed to outlive the HTTP response.
		q.proc.Process(context.Background(), t)
	}
}

// Enqueue schedules a task. Returns false if the queue is full or shut
// down; the caller decides how to surface the rejection.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.tasks <- t:
		return true
	default:
		log.Error().Str("request_id", t.RequestID).Msg("task queue full, rejecting")
		return false
	}
}

// Shutdown stops intake and waits for in-flight tasks until ctx expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
