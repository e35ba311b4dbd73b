package sim

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Frames are dropped, never queued: a subscriber that falls behind misses
// sweeps rather than receiving stale ones.

var (
	errSubscriberExists = errors.New("sensor already subscribed")
	errBusClosed        = errors.New("bus is closed")
)

// BusStats is a snapshot of how many frames the bus moved.
type BusStats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// frameBus routes incoming frames to the subscriber of their sensor. The bus
// owns the subscriber channels and closes them when the subscription or the
// bus goes away.
type frameBus struct {
	mu          sync.RWMutex
	subscribers map[uint32]chan wireFrame
	closed      bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newFrameBus() *frameBus {
	return &frameBus{subscribers: make(map[uint32]chan wireFrame)}
}

func (b *frameBus) subscribe(sensorID uint32, buffer int) (<-chan wireFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed
	}
	if _, exists := b.subscribers[sensorID]; exists {
		return nil, errSubscriberExists
	}
	ch := make(chan wireFrame, buffer)
	b.subscribers[sensorID] = ch
	return ch, nil
}

func (b *frameBus) unsubscribe(sensorID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if ch, exists := b.subscribers[sensorID]; exists {
		delete(b.subscribers, sensorID)
		close(ch)
	}
}

// publish routes the frame to its sensor's subscriber without blocking.
// Frames for unsubscribed sensors and frames nobody is ready for are dropped.
func (b *frameBus) publish(f wireFrame) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}
	ch, exists := b.subscribers[f.SensorID]
	if !exists {
		b.dropped.Add(1)
		return
	}
	select {
	case ch <- f:
		b.delivered.Add(1)
	default:
		b.dropped.Add(1)
	}
}

func (b *frameBus) stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

func (b *frameBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
