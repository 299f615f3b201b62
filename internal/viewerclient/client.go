package viewerclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duskwatch/camstream/internal/collab"
	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/session"
	"github.com/duskwatch/camstream/internal/wire"
)

// Config holds the knobs needed to construct a Client.
type Config struct {
	Addr          string
	Password      string
	ClientVersion int // 2 or 3; see the v3-viewer open question resolved in DESIGN.md
	Tier          int // DecodeQueueTier{Low,Medium,High}
	Clock         collab.Clock

	// OnFrame is called, from the read loop's goroutine, for every frame
	// that survives the jitter buffer and is ready to hand to the decoder.
	OnFrame func(f frame.EncodedFrame)
	// OnCodecSpecificData is called whenever a CSD arrives for the current
	// epoch.
	OnCodecSpecificData func(csd frame.CodecSpecificData)
	// OnStateChange is called, best-effort, whenever ConnectionState
	// changes, so a UI layer can reflect it without polling.
	OnStateChange func(ConnectionState)
}

func (c *Config) applyDefaults() {
	if c.ClientVersion == 0 {
		c.ClientVersion = 2
	}
	if c.Tier == 0 {
		c.Tier = DecodeQueueTierMedium
	}
	if c.Clock == nil {
		c.Clock = collab.SystemClock{}
	}
}

// Client is the viewer: it dials, handshakes, decodes, and reconnects with
// backoff, mirroring the server's authoritative STREAM_STATE rather than
// inferring its own video state from frame arrival once STREAM_STATE has
// been observed at least once this session.
type Client struct {
	cfg Config
	log *zap.SugaredLogger

	state   *machine
	decode  *DecodeQueue
	backoff *backoff
	wd      watchdogClock

	sawStreamState    atomic.Bool
	currentEpoch      atomic.Uint32
	negotiatedVersion atomic.Uint32
	sessionID         atomic.Value // string
	autoReconnect     atomic.Bool

	mu    sync.Mutex
	conn  net.Conn
	codec *wire.Codec
}

// New constructs an unconnected Client.
func New(cfg Config, log *zap.SugaredLogger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{
		cfg:     cfg,
		log:     log.With("component", "viewer_client"),
		state:   newMachine(),
		decode:  NewDecodeQueue(cfg.Tier),
		backoff: newBackoff(),
	}
	c.sessionID.Store("")
	c.autoReconnect.Store(true)
	return c
}

// State returns the client's current connection state.
func (c *Client) State() ConnectionState { return c.state.Get() }

// Epoch returns the last epoch the client has seen via STREAM_ACCEPTED.
func (c *Client) Epoch() uint32 { return c.currentEpoch.Load() }

// Run drives the connect/handshake/serve/reconnect loop until ctx is
// cancelled or a STREAM_STATE|Stopped tells the client to stop reconnecting
// for the lifetime of this session.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.autoReconnect.Load() {
			return nil
		}

		err := c.connectOnce(ctx)
		c.setState(StateDisconnected)
		if err != nil {
			c.log.Debugw("connection ended", "error", err)
		}

		if !c.autoReconnect.Load() || ctx.Err() != nil {
			return nil
		}

		wait := c.backoff.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Background closes the socket deliberately and disables auto-reconnect
// until Foreground is called again, matching the mobile-viewer lifecycle
// rule: a backgrounded app saves power and avoids leaving a half-dead
// socket for the server to eventually reset.
func (c *Client) Background() {
	c.autoReconnect.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Foreground re-enables auto-reconnect; the next Run iteration (or a fresh
// Run call) will dial again.
func (c *Client) Foreground() {
	c.autoReconnect.Store(true)
}

// Close permanently stops the client: disables reconnect and closes any
// live socket.
func (c *Client) Close() error {
	c.autoReconnect.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) setState(next ConnectionState) {
	if err := c.state.To(next); err != nil {
		c.log.Debugw("state transition rejected", "error", err)
		return
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(next)
	}
}

// connectOnce dials, handshakes, and serves a single connection until it
// errors out or is closed. It always leaves the client in a state reachable
// from Disconnected when it returns.
func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("viewerclient: dial: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	codec := wire.NewCodec(conn)
	c.mu.Lock()
	c.conn = conn
	c.codec = codec
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.codec = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.setState(StateConnected)
	c.sawStreamState.Store(false)
	c.decode.Reset()

	if err := c.handshake(conn, codec); err != nil {
		return err
	}
	c.backoff.Reset()
	c.wd.reset(time.Now())
	c.setState(StateAuthenticated)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return c.readLoop(egCtx, codec) })
	eg.Go(func() error { return c.pingLoop(egCtx, codec) })
	eg.Go(func() error { return c.watchdogLoop(egCtx, codec) })

	go func() {
		<-egCtx.Done()
		_ = conn.Close()
	}()

	return eg.Wait()
}

// handshake drives the client side of HELLO → (PROTO) → AUTH_CHALLENGE →
// AUTH_RESPONSE → AUTH_OK/FAIL → SESSION, bounded by the handshake watchdog.
func (c *Client) handshake(conn net.Conn, codec *wire.Codec) error {
	_ = conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	version := wire.ClampHelloVersion(c.cfg.ClientVersion)
	c.negotiatedVersion.Store(uint32(version))
	hello := wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", uint64(version))
	if err := codec.WriteMessage(hello); err != nil {
		return camerrors.NewHandshakeError("write HELLO", err)
	}

	if version >= 3 {
		proto, err := codec.ReadMessage()
		if err != nil {
			return camerrors.NewHandshakeError("read PROTO", err)
		}
		if proto.Tag != "PROTO" {
			return camerrors.NewHandshakeError("read PROTO", fmt.Errorf("expected PROTO, got %s", proto.Tag))
		}
	}

	challenge, err := codec.ReadMessage()
	if err != nil {
		return camerrors.NewHandshakeError("read AUTH_CHALLENGE", err)
	}
	if challenge.Tag != "AUTH_CHALLENGE" {
		return camerrors.NewHandshakeError("read AUTH_CHALLENGE", fmt.Errorf("expected AUTH_CHALLENGE, got %s", challenge.Tag))
	}
	saltHex, _ := challenge.Get("salt")
	hash := session.ChallengeResponse(c.cfg.Password, saltHex)
	if err := codec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", hash)); err != nil {
		return camerrors.NewHandshakeError("write AUTH_RESPONSE", err)
	}

	result, err := codec.ReadMessage()
	if err != nil {
		return camerrors.NewHandshakeError("read AUTH_OK/FAIL", err)
	}
	if result.Tag != "AUTH_OK" {
		return camerrors.NewHandshakeError("read AUTH_OK/FAIL", fmt.Errorf("authentication rejected"))
	}

	sess, err := codec.ReadMessage()
	if err != nil {
		return camerrors.NewHandshakeError("read SESSION", err)
	}
	if id, ok := sess.Get("id"); ok {
		c.sessionID.Store(id)
	}
	return nil
}

// SendTalkback writes one upstream PCM16LE mono 48kHz audio frame.
func (c *Client) SendTalkback(pcm []byte) error {
	c.mu.Lock()
	codec := c.codec
	c.mu.Unlock()
	if codec == nil {
		return fmt.Errorf("viewerclient: not connected")
	}
	m := wire.NewMessage("AUDIO_FRAME").
		WithString("dir", string(frame.AudioUp)).
		WithString("format", string(frame.AudioPCM)).
		WithUint64("size", uint64(len(pcm))).
		WithInt64("tsUs", c.cfg.Clock.NowUs()).
		WithUint64("rate", 48000).
		WithUint64("ch", 1)
	return codec.WriteMessageThenPayloads(m, pcm)
}

// requestKeyframe sends REQ_KEYFRAME, used by the stream watchdog when no
// frame has arrived within StreamFrameTimeout.
func (c *Client) requestKeyframe(codec *wire.Codec) {
	_ = codec.WriteMessage(wire.NewMessage("REQ_KEYFRAME"))
}
