package link

import "sync"

// queue is a bounded FIFO of messages with its own lock, separate from the
// link state lock so GetMessage never waits on socket teardown.
type queue struct {
	mu    sync.Mutex
	items [][]byte
	limit int
}

func newQueue(limit int) *queue {
	return &queue{
		items: make([][]byte, 0, limit),
		limit: limit,
	}
}

// push appends p and returns how many of the oldest items were dropped to
// stay within the limit.
func (q *queue) push(p []byte) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, p)

	if over := len(q.items) - q.limit; over > 0 {
		for i := 0; i < over; i++ {
			q.items[i] = nil
		}
		q.items = q.items[over:]
		dropped = over
	}

	return dropped
}

// pop returns nil when the queue is empty.
func (q *queue) pop() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	// reclaim the backing array once drained so it does not creep forward
	if len(q.items) == 0 {
		q.items = make([][]byte, 0, q.limit)
	}

	return p
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([][]byte, 0, q.limit)
}
