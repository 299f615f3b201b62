// Package framebus implements the bounded single-producer/single-consumer
// queue that carries encoded video frames from the encoder to the fan-out
// loop in internal/streamserver. It never blocks the producer: a full queue
// sheds non-keyframes and otherwise clears itself to make room for a fresh
// keyframe, since a keyframe resets decoder context on every receiving
// session anyway.
package framebus

import (
	"sync"
	"sync/atomic"

	"github.com/duskwatch/camstream/internal/frame"
)

// DefaultCapacity matches the bounded-queue capacity used by the fan-out
// loop; callers may override it via NewWithCapacity for tests.
const DefaultCapacity = 60

// Bus is a bounded SPSC queue of frame.EncodedFrame with keyframe-priority
// drop and a side slot for the current epoch's CodecSpecificData.
type Bus struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	queue    []frame.EncodedFrame
	capacity int
	closed   bool

	pendingCSD atomic.Pointer[frame.CodecSpecificData]

	dropped uint64 // load-shed counter for observability
}

// New creates a frame bus with the default capacity.
func New() *Bus { return NewWithCapacity(DefaultCapacity) }

// NewWithCapacity creates a frame bus with a custom bounded capacity.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		notEmpty: make(chan struct{}, 1),
		capacity: capacity,
	}
}

// Publish offers f to the queue under the DROP_NON_KEYFRAME_ON_FULL policy:
//   - spare capacity: enqueue, return true.
//   - full queue, f is a keyframe: clear the queue and enqueue f, return true.
//   - full queue, f is not a keyframe: drop f, return false.
//
// A false return is not an error; it is a backpressure signal the caller
// should count for observability.
func (b *Bus) Publish(f frame.EncodedFrame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if len(b.queue) < b.capacity {
		b.queue = append(b.queue, f)
		b.signalNotEmpty()
		return true
	}

	if f.IsKeyframe {
		b.queue = b.queue[:0]
		b.queue = append(b.queue, f)
		b.signalNotEmpty()
		return true
	}

	b.dropped++
	return false
}

// signalNotEmpty wakes a consumer blocked in Poll, without blocking the
// producer if a wakeup is already pending.
func (b *Bus) signalNotEmpty() {
	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// Poll removes and returns the oldest queued frame, or ok=false if the queue
// is currently empty. The consumer is expected to call this on a timed
// ticker (never a blocking take) so a shutdown signal is observed within one
// tick; see WaitChan for the notification primitive that lets it avoid
// busy-polling.
func (b *Bus) Poll() (frame.EncodedFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return frame.EncodedFrame{}, false
	}
	f := b.queue[0]
	b.queue = b.queue[1:]
	return f, true
}

// WaitChan returns a channel that receives a value after every successful
// Publish (pending wakeups coalesce into one) and when Close is called. The consumer
// should select on this with a timeout rather than calling Poll in a tight
// loop.
func (b *Bus) WaitChan() <-chan struct{} { return b.notEmpty }

// SetPendingCSD records the most recent CodecSpecificData for the current
// epoch so a newly-admitted session can be primed before it receives any
// frame.
func (b *Bus) SetPendingCSD(csd frame.CodecSpecificData) {
	b.pendingCSD.Store(&csd)
}

// PendingCSD returns the most recently stored CodecSpecificData, or
// ok=false if none has been set yet (before the first encoder start).
func (b *Bus) PendingCSD() (frame.CodecSpecificData, bool) {
	p := b.pendingCSD.Load()
	if p == nil {
		return frame.CodecSpecificData{}, false
	}
	return *p, true
}

// Dropped returns the cumulative count of frames shed by backpressure.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len returns the current queue depth.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close marks the bus closed; subsequent Publish calls fail. Safe to call
// more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.signalNotEmpty()
}
