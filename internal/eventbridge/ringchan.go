package eventbridge

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. Producers never block: if the buffer is full, the oldest element
// is discarded. Sends after Close are discarded instead of panicking, which
// lets a platform notification already in flight complete harmlessly while
// the registration is being torn down.
type RingChannel[T any] struct {
	ch      chan T
	mu      sync.Mutex
	closed  bool
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over it
// until the channel is closed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered item if the buffer is
// full. Sending on a closed RingChannel is a no-op.
func (rc *RingChannel[T]) Send(v T) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.metrics.addDiscarded(1)
		return
	}

	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
		default:
		}
		rc.ch <- v
	}
	rc.metrics.addWritten(1)
}

// Receive blocks until a value is available or the channel is closed.
// The ok result is false if the channel is closed and drained.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	return
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the channel. Buffered elements remain receivable; subsequent
// Sends are discarded. Close is idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// GetMetrics returns a snapshot of the current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
		Discarded:   atomic.LoadInt64(&rc.metrics.Discarded),
	}
}

// Metrics provides lock-free counters for RingChannel activity.
type Metrics struct {
	Written     int64 // values accepted into the buffer
	Overwritten int64 // values dropped to make room for newer ones
	Discarded   int64 // values discarded because the channel was closed
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}

func (m *Metrics) addDiscarded(n int) {
	atomic.AddInt64(&m.Discarded, int64(n))
}
