package jobs

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is one queued enrichment request.
type Task struct {
	ID      string    `json:"id"`
	EventID int64     `json:"event_id"`
	DueAt   time.Time `json:"due_at"`
}

// Queue is a delayed task queue. Enqueue satisfies the upsert path's
// dispatcher contract.
type Queue interface {
	// Enqueue schedules enrichment of eventID after delay.
	Enqueue(ctx context.Context, eventID int64, delay time.Duration) error
	// Dequeue blocks until a task is due or ctx is done.
	Dequeue(ctx context.Context) (*Task, error)
	// Len returns the number of queued tasks, due or not.
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue is a process-local Queue ordered by due time.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  taskHeap
	notify chan struct{}
	now    func() time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, eventID int64, delay time.Duration) error {
	q.mu.Lock()
	heap.Push(&q.tasks, &Task{ID: uuid.NewString(), EventID: eventID, DueAt: q.now().Add(delay)})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		wait := time.Hour
		if q.tasks.Len() > 0 {
			next := q.tasks[0]
			wait = next.DueAt.Sub(q.now())
			if wait <= 0 {
				heap.Pop(&q.tasks)
				q.mu.Unlock()
				return next, nil
			}
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.tasks.Len()), nil
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].DueAt.Equal(h[j].DueAt) {
		return h[i].EventID < h[j].EventID
	}
	return h[i].DueAt.Before(h[j].DueAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
