package proc

import (
	"sync"

	"github.com/samber/lo"
)

// QueueEntry is one line of a queue listing.
type QueueEntry struct {
	Position    int // 1-based
	DisplayName string
	Ref         string
	Resolved    bool
}

// Queue is the FIFO of pending items. Duplicates are allowed; order is the
// only guarantee.
type Queue struct {
	mu    sync.Mutex
	items []*QueueItem
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends to the tail and returns the item's 1-based position.
func (q *Queue) Enqueue(item *QueueItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return len(q.items)
}

// DequeueNext removes and returns the head.
func (q *Queue) DequeueNext() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head, true
}

// InsertAt moves the item at the 1-based position to the head ("play next").
// An out-of-range position returns a *BoundsError and leaves the queue as is.
func (q *Queue) InsertAt(position int) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if position < 1 || position > len(q.items) {
		return nil, &BoundsError{Position: position, Len: len(q.items)}
	}
	idx := position - 1
	item := q.items[idx]
	copy(q.items[1:idx+1], q.items[:idx])
	q.items[0] = item
	return item, nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every pending item and returns how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Snapshot lists the queue without waiting for unresolved titles.
func (q *Queue) Snapshot() []QueueEntry {
	q.mu.Lock()
	items := append([]*QueueItem(nil), q.items...)
	q.mu.Unlock()

	return lo.Map(items, func(it *QueueItem, i int) QueueEntry {
		name, ok := it.DisplayName()
		if !ok {
			name = PendingName
		}
		return QueueEntry{Position: i + 1, DisplayName: name, Ref: it.Ref(), Resolved: ok}
	})
}
