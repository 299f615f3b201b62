// Package cmdbus implements the bounded, multi-producer/single-consumer
// queue of structured control intents that crosses every layer boundary in
// the stream server: no session or acceptor goroutine ever touches encoder,
// camera, or recording state directly. Everything is posted here and
// drained by one control-executor goroutine.
package cmdbus

import (
	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
)

// DefaultCapacity is the bounded queue depth for the command bus.
const DefaultCapacity = 256

// Kind tags the variant carried by a Command.
type Kind int

const (
	RequestKeyframe Kind = iota
	StartRecording
	StopRecording
	ReconfigureStream
	Backpressure
	PressureClear
	AdjustBitrate
	SwitchCamera
	Zoom
	RecoverEncoder
)

// Command is a single tagged control intent. Only the fields relevant to
// Kind are populated; the rest are zero values.
type Command struct {
	Kind Kind

	// ReconfigureStream
	Config frame.StreamConfig

	// Backpressure / PressureClear
	SessionID string

	// AdjustBitrate
	BitrateBps uint32

	// Zoom
	ZoomFactor float64

	// StartRecording
	IncludeAudio bool
}

// Bus is a bounded channel-backed command queue. Multiple producers may
// call Post concurrently; exactly one consumer should range over Commands.
type Bus struct {
	ch chan Command
}

// New creates a command bus with the default capacity.
func New() *Bus { return NewWithCapacity(DefaultCapacity) }

// NewWithCapacity creates a command bus with a custom bounded capacity.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{ch: make(chan Command, capacity)}
}

// Post enqueues cmd without blocking indefinitely; it returns a BusError if
// the queue is full or has been closed. Producers that post from a
// request-handling goroutine should treat a full queue as a transient
// overload signal, not a fatal error.
func (b *Bus) Post(cmd Command) (err error) {
	defer func() {
		if recover() != nil {
			err = camerrors.NewBusError("cmdbus.post", errClosed)
		}
	}()
	select {
	case b.ch <- cmd:
		return nil
	default:
		return camerrors.NewBusError("cmdbus.post", errFull)
	}
}

// Commands exposes the receive side for the single control-executor
// consumer. Range over it until it is closed by Close.
func (b *Bus) Commands() <-chan Command { return b.ch }

// Close shuts the bus down; the consumer's range loop exits once drained.
func (b *Bus) Close() { close(b.ch) }

var errFull = busFullError{}

type busFullError struct{}

func (busFullError) Error() string { return "command bus is full" }

var errClosed = busClosedError{}

type busClosedError struct{}

func (busClosedError) Error() string { return "command bus is closed" }
