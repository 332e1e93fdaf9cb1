package worker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Task
	unique  map[string]bool
	now     func() time.Time
}

// NewMemoryQueue builds an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{unique: make(map[string]bool), now: time.Now}
}

// WithClock overrides the queue's clock.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task.UniqueKey != "" {
		if q.unique[task.UniqueKey] {
			return nil
		}
		q.unique[task.UniqueKey] = true
	}
	q.pending = append(q.pending, task)
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	sort.Slice(q.pending, func(i, j int) bool { return q.pending[i].RunAt.Before(q.pending[j].RunAt) })

	for i, task := range q.pending {
		if task.RunAt.After(now) {
			break
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		claimed := task
		return &claimed, nil
	}
	return nil, nil
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if task.UniqueKey != "" {
		delete(q.unique, task.UniqueKey)
	}
	return nil
}

// Retry implements Queue.
func (q *MemoryQueue) Retry(ctx context.Context, task Task, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.RunAt = runAt
	q.pending = append(q.pending, task)
	return nil
}

// Len reports pending tasks, for test assertions.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
