package report

import (
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
)

// DefaultQueueSize is the number of records a queued reporter buffers.
const DefaultQueueSize = 256

// queue hands records from streaming threads to a single sender goroutine.
// push never blocks: when the buffer is full the record is dropped.
type queue struct {
	ch   chan correlate.Record
	send func(correlate.Record) error
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

func newQueue(size int, send func(correlate.Record) error) *queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &queue{
		ch:   make(chan correlate.Record, size),
		send: send,
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for rec := range q.ch {
		if err := q.send(rec); err != nil {
			q.errors.Add(1)
			continue
		}
		q.sent.Add(1)
	}
}

func (q *queue) push(rec correlate.Record) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return
	}
	select {
	case q.ch <- rec:
	default:
		q.dropped.Add(1)
	}
}

// close stops accepting records and waits for the queued ones to be sent.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
}

func (q *queue) stats() Stats {
	return Stats{
		Sent:    q.sent.Load(),
		Dropped: q.dropped.Load(),
		Errors:  q.errors.Load(),
	}
}
