package viewerclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/wire"
)

// watchdogClock bundles the timestamps the watchdog loop reads lock-free
// (UnixNano int64 under atomic.Int64) and the booleans that widen or
// narrow a tolerance. All fields are reset in connectOnce as soon as the
// handshake succeeds.
type watchdogClock struct {
	authenticatedAt atomic.Int64
	lastFrameAt     atomic.Int64
	lastPongAt      atomic.Int64
	firstFrameSeen  atomic.Bool
	graceWindow     atomic.Bool
	audioFlowing    atomic.Bool
}

func (w *watchdogClock) reset(now time.Time) {
	w.authenticatedAt.Store(now.UnixNano())
	w.lastFrameAt.Store(now.UnixNano())
	w.lastPongAt.Store(now.UnixNano())
	w.firstFrameSeen.Store(false)
	w.graceWindow.Store(false)
	w.audioFlowing.Store(false)
}

func unixNanoTime(v int64) time.Time { return time.Unix(0, v) }

// readLoop is the single consumer of inbound wire traffic for one
// connection: control lines and, once the viewer negotiates v2 framing,
// v2-style FRAME|size=N messages (the v3 binary marker reader is gated
// behind ClientVersion==3; see DESIGN.md's resolution of the v3-viewer open
// question).
func (c *Client) readLoop(ctx context.Context, codec *wire.Codec) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.negotiatedVersion.Load() == 3 {
			isBinary, err := codec.PeekIsBinaryFrame()
			if err != nil {
				return err
			}
			if isBinary {
				bf, err := codec.ReadBinaryFrame()
				if err != nil {
					return err
				}
				c.handleFrame(frame.EncodedFrame{Payload: bf.Payload, IsKeyframe: bf.IsKeyframe, Epoch: bf.Epoch})
				continue
			}
		}

		msg, err := codec.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handleMessage(msg, codec); err != nil {
			return err
		}
	}
}

func (c *Client) handleMessage(msg wire.Message, codec *wire.Codec) error {
	switch msg.Tag {
	case "STREAM_ACCEPTED":
		epoch, _ := msg.GetUint32("epoch")
		if epoch > c.currentEpoch.Load() {
			c.currentEpoch.Store(epoch)
			c.decode.Reset()
		}
	case "CSD":
		epoch, _ := msg.GetUint32("epoch")
		spsLen, _ := msg.GetUint32("sps")
		ppsLen, _ := msg.GetUint32("pps")
		sps, err := codec.ReadPayload(spsLen)
		if err != nil {
			return err
		}
		pps, err := codec.ReadPayload(ppsLen)
		if err != nil {
			return err
		}
		if epoch < c.currentEpoch.Load() {
			return nil // stale epoch CSD, drop silently
		}
		if c.cfg.OnCodecSpecificData != nil {
			c.cfg.OnCodecSpecificData(frame.CodecSpecificData{SPS: sps, PPS: pps, Epoch: epoch})
		}
	case "FRAME":
		epoch, _ := msg.GetUint32("epoch")
		isKey, _ := msg.GetBool("key")
		tsUs, _ := msg.GetInt64("tsUs")
		size, _ := msg.GetUint32("size")
		payload, err := codec.ReadPayload(size)
		if err != nil {
			return err
		}
		c.handleFrame(frame.EncodedFrame{Payload: payload, IsKeyframe: isKey, PTSUs: tsUs, Epoch: epoch})
	case "AUDIO_FRAME":
		dir, _ := msg.Get("dir")
		size, _ := msg.GetUint32("size")
		payload, err := codec.ReadPayload(size)
		if err != nil {
			return err
		}
		if dir == string(frame.AudioDown) {
			c.wd.audioFlowing.Store(true)
			_ = payload
		}
	case "STREAM_STATE":
		code, _ := msg.GetUint32("code")
		epoch, _ := msg.GetUint32("epoch")
		c.sawStreamState.Store(true)
		c.wd.graceWindow.Store(code == uint32(frame.StreamStateReconfiguring))
		if epoch >= c.currentEpoch.Load() {
			c.currentEpoch.Store(epoch)
		}
		if next, ok := streamStateToConnection(code); ok {
			c.setState(next)
			if next == StateIdle {
				// Graceful STOPPED: never reconnect for the lifetime of
				// this client session.
				c.autoReconnect.Store(false)
				return fmt.Errorf("viewerclient: server stopped the stream")
			}
		}
	case "PONG":
		c.wd.lastPongAt.Store(time.Now().UnixNano())
	case "RESUME_OK":
		// negotiated parameters restored server-side; nothing further to do
		// here beyond letting the next STREAM_ACCEPTED/CSD arrive normally.
	case "RESUME_FAIL":
		c.sessionID.Store("")
	case "ERROR":
		code, _ := msg.GetUint16("code")
		text, _ := msg.Get("msg")
		return fmt.Errorf("viewerclient: server error %d: %s", code, text)
	}
	return nil
}

func (c *Client) handleFrame(f frame.EncodedFrame) {
	if f.Epoch != 0 && f.Epoch < c.currentEpoch.Load() {
		return // stale epoch, drop silently per the epoch gate
	}
	now := time.Now()
	c.wd.lastFrameAt.Store(now.UnixNano())
	c.wd.firstFrameSeen.Store(true)

	result := c.decode.Push(f, now)
	if !result.Accepted {
		return
	}
	if !c.sawStreamState.Load() && f.IsKeyframe {
		// Legacy fallback (no STREAM_STATE observed yet): infer Streaming
		// from keyframe arrival instead of the server-authoritative state.
		c.setState(StateStreaming)
	}

	for {
		df, ok := c.decode.Poll()
		if !ok {
			break
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(df)
		}
	}
}

// pingLoop sends PING|tsMs=... every pingInterval until ctx is cancelled.
func (c *Client) pingLoop(ctx context.Context, codec *wire.Codec) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m := wire.NewMessage("PING").WithInt64("tsMs", time.Now().UnixMilli())
			if err := codec.WriteMessage(m); err != nil {
				return err
			}
		}
	}
}

// watchdogLoop evaluates all deadline-based watchdogs on a fixed tick.
// Returning an error tears down the connection and lets Run's reconnect
// backoff take over.
func (c *Client) watchdogLoop(ctx context.Context, codec *wire.Codec) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.checkWatchdogs(codec); err != nil {
				return err
			}
		}
	}
}

func (c *Client) checkWatchdogs(codec *wire.Codec) error {
	now := time.Now()

	if !c.wd.firstFrameSeen.Load() {
		elapsed := now.Sub(unixNanoTime(c.wd.authenticatedAt.Load()))
		switch {
		case elapsed >= StartStallReconnect:
			return fmt.Errorf("viewerclient: start-stall watchdog: no frame within %s", StartStallReconnect)
		case elapsed >= StartStallDowngrade:
			if c.State() != StateConnected {
				c.setState(StateConnected)
			}
		}
	}

	if c.State() == StateStreaming {
		if now.Sub(unixNanoTime(c.wd.lastFrameAt.Load())) >= StreamFrameTimeout {
			c.requestKeyframe(codec)
			if !c.sawStreamState.Load() && !c.wd.audioFlowing.Load() {
				c.setState(StateConnected)
			}
		}
	}

	heartbeatTimeout := HeartbeatTimeoutNormal
	if c.wd.audioFlowing.Load() || c.wd.graceWindow.Load() {
		heartbeatTimeout = HeartbeatTimeoutGrace
	}
	if now.Sub(unixNanoTime(c.wd.lastPongAt.Load())) >= heartbeatTimeout {
		return fmt.Errorf("viewerclient: heartbeat watchdog: no PONG within %s", heartbeatTimeout)
	}

	return nil
}
