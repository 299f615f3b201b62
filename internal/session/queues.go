package session

import (
	"sync"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/framebus"
	"github.com/duskwatch/camstream/internal/wire"
)

// controlQueueCapacity bounds the per-session outbound control queue. It is
// drained ahead of the frame queue on every send-loop tick, so it stays
// shallow under normal operation; depth this large only matters during a
// burst of STREAM_STATE/epoch churn.
const controlQueueCapacity = 64

// FrameQueueTierLow/Medium/High give the per-session frame queue depth for a
// device tier, mirroring the frame bus's own keyframe-priority drop policy
// but sized per-session rather than per-encoder.
const (
	FrameQueueTierLow    = 15
	FrameQueueTierMedium = 25
	FrameQueueTierHigh   = 30
)

// controlItem is one queued outbound control write: a message and, for CSD,
// the raw SPS/PPS byte runs that must follow it on the wire with no other
// write interleaved.
type controlItem struct {
	Message  wire.Message
	Payloads [][]byte
}

// controlQueue is a small bounded FIFO of outbound control messages. Unlike
// the frame queue it never drops: a full control queue is a sign the session
// is unresponsive, and Session.PostControl treats a failed Post as a cue to
// disconnect rather than a routine backpressure event.
type controlQueue struct {
	mu     sync.Mutex
	items  []controlItem
	cap    int
	closed bool
}

func newControlQueue() *controlQueue {
	return &controlQueue{cap: controlQueueCapacity}
}

// Post enqueues m, with optional trailing raw payloads (used for CSD's
// sps/pps byte runs). Returns a BusError if the queue is full or closed.
func (q *controlQueue) Post(m wire.Message, payloads ...[]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return camerrors.NewBusError("post control message", errClosedQueue)
	}
	if len(q.items) >= q.cap {
		return camerrors.NewBusError("post control message", errQueueFull)
	}
	q.items = append(q.items, controlItem{Message: m, Payloads: payloads})
	return nil
}

// Drain removes and returns every currently-queued item, in order. The send
// loop calls this once per tick and writes the whole batch before
// considering the frame queue.
func (q *controlQueue) Drain() []controlItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *controlQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// newFrameQueue builds the per-session outbound frame queue. It reuses
// framebus.Bus directly: a session's frame queue is a single-producer
// (fan-out loop) / single-consumer (this session's send loop) bounded queue
// with the identical DROP_NON_KEYFRAME_ON_FULL policy as the shared frame
// bus, just sized smaller and scoped to one viewer.
func newFrameQueue(tier int) *framebus.Bus {
	return framebus.NewWithCapacity(tier)
}

var (
	errClosedQueue = queueError("queue closed")
	errQueueFull   = queueError("queue full")
)

type queueError string

func (e queueError) Error() string { return string(e) }
