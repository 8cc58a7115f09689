package session

import "sync"

// Queue is the handoff between a session's reader and the drain step.
// Push never blocks; TakeAll removes everything queued so far in one step.
type Queue struct {
	mu    sync.Mutex
	items []string
}

// Push appends a chunk
func (q *Queue) Push(chunk string) {
	q.mu.Lock()
	q.items = append(q.items, chunk)
	q.mu.Unlock()
}

// TakeAll removes and returns all queued chunks in arrival order
func (q *Queue) TakeAll() []string {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Len returns the number of queued chunks
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
