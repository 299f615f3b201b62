package session

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/framebus"
	"github.com/duskwatch/camstream/internal/wire"
)

// heartbeatTolerance is how long the server waits for any inbound traffic
// (including a PING) from a viewer before treating it as dead. Clients
// send PING roughly every 2s, so 60s gives generous margin for jitter over a
// slow network without holding a dead session open for long.
const heartbeatTolerance = 60 * time.Second

// Session is one authenticated viewer connection: its socket, wire codec,
// lifecycle state machine, and the dual outbound queues the send loop
// drains on every tick.
type Session struct {
	ID      string
	Version int
	Tier    int

	conn  net.Conn
	codec *wire.Codec
	state *machine
	log   *zap.SugaredLogger

	control *controlQueue
	frames  *framebus.Bus

	mu            sync.Mutex
	lastInboundAt time.Time
	epoch         uint32
	caps          frame.ViewerCaps
	capsSet       bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an already-handshaken connection into a Session. result comes
// from ServerHandshake; tier selects the per-session frame queue depth
// (FrameQueueTierLow/Medium/High).
func New(conn net.Conn, codec *wire.Codec, result HandshakeResult, tier int, log *zap.SugaredLogger) *Session {
	s := &Session{
		ID:            result.SessionID,
		Version:       result.Version,
		Tier:          tier,
		conn:          conn,
		codec:         codec,
		state:         newMachine(),
		log:           log,
		control:       newControlQueue(),
		frames:        newFrameQueue(tier),
		lastInboundAt: time.Now(),
		closed:        make(chan struct{}),
	}
	_ = s.state.To(StateAuthenticated)
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State { return s.state.Get() }

// Transition attempts to move the session to next, returning a SessionError
// if the edge is not legal from the current state.
func (s *Session) Transition(next State) error {
	if err := s.state.To(next); err != nil {
		return camerrors.NewSessionError("transition", err)
	}
	return nil
}

// Epoch returns the last epoch this session was told about.
func (s *Session) Epoch() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// SetEpoch records the epoch the session is now current on, used to gate
// delivery of frames tagged with a stale epoch during the reconfigure window.
func (s *Session) SetEpoch(epoch uint32) {
	s.mu.Lock()
	s.epoch = epoch
	s.mu.Unlock()
}

// Caps returns the viewer capability envelope this session last reported
// via CAPS, and whether it has ever reported one at all (ok=false means the
// session must be excluded from cap arbitration, not treated as a
// zero-valued cap).
func (s *Session) Caps() (caps frame.ViewerCaps, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps, s.capsSet
}

// SetCaps records the viewer capability envelope reported via CAPS.
func (s *Session) SetCaps(caps frame.ViewerCaps) {
	s.mu.Lock()
	s.caps = caps
	s.capsSet = true
	s.mu.Unlock()
}

// PostControl enqueues a control message for delivery on the next send-loop
// tick, ahead of any queued frame. Optional trailing payloads are written
// immediately after the message with no other write interleaved, for
// messages like CSD that carry raw sps/pps bytes. A failed Post closes the
// session.
func (s *Session) PostControl(m wire.Message, payloads ...[]byte) error {
	if err := s.control.Post(m, payloads...); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// PublishFrame offers f to this session's frame queue under the
// DROP_NON_KEYFRAME_ON_FULL policy. false means the frame was dropped for
// backpressure, not an error.
func (s *Session) PublishFrame(f frame.EncodedFrame) bool {
	if f.Epoch != 0 && f.Epoch < s.Epoch() {
		return false // stale epoch, never enqueue
	}
	return s.frames.Publish(f)
}

// Touch records that a byte of inbound traffic was just observed, resetting
// the heartbeat watchdog.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastInboundAt = time.Now()
	s.mu.Unlock()
}

// IdleFor returns how long it has been since the last inbound traffic.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastInboundAt)
}

// HeartbeatExpired reports whether the session has gone silent longer than
// the server-side heartbeat tolerance.
func (s *Session) HeartbeatExpired() bool {
	return s.IdleFor() > heartbeatTolerance
}

// SendLoop drains the control queue, then at most one frame, on every tick
// of interval, writing both to the wire codec. It returns when the session
// is closed or a write fails. The "drain control then one frame" discipline
// keeps control traffic (STREAM_STATE, CAPS_OK, etc.) from being starved by
// a backlog of video frames, while still making steady progress on frames.
func (s *Session) SendLoop(interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return nil
		case <-ticker.C:
			if err := s.drainOnce(); err != nil {
				return err
			}
		case <-s.frames.WaitChan():
			if err := s.drainOnce(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) drainOnce() error {
	for _, item := range s.control.Drain() {
		if len(item.Payloads) > 0 {
			if err := s.codec.WriteMessageThenPayloads(item.Message, item.Payloads...); err != nil {
				return err
			}
			continue
		}
		if err := s.codec.WriteMessage(item.Message); err != nil {
			return err
		}
	}
	if f, ok := s.frames.Poll(); ok {
		if s.Version >= 3 {
			if err := s.codec.WriteBinaryFrame(f.Epoch, f.IsKeyframe, f.Payload); err != nil {
				return err
			}
		} else {
			m := wire.NewMessage("FRAME").
				WithUint64("epoch", uint64(f.Epoch)).
				WithBool("key", f.IsKeyframe).
				WithInt64("tsUs", f.PTSUs).
				WithUint64("size", uint64(len(f.Payload)))
			if err := s.codec.WriteSizedMessage(m, f.Payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close shuts the session down: marks it Disconnected, closes the
// underlying connection, and stops the send loop. Safe to call more than
// once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.state.To(StateDisconnected)
		s.control.Close()
		s.frames.Close()
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
