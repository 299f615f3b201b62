package streamserver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/duskwatch/camstream/internal/aac"
	"github.com/duskwatch/camstream/internal/bufpool"
	"github.com/duskwatch/camstream/internal/cmdbus"
	"github.com/duskwatch/camstream/internal/collab"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/framebus"
	"github.com/duskwatch/camstream/internal/session"
	"github.com/duskwatch/camstream/internal/streamserver/hooks"
	"github.com/duskwatch/camstream/internal/wire"
)

// sendLoopInterval is the tick period each session's send loop uses when it
// has nothing queued, giving it a chance to notice a closed session promptly
// even without any control/frame traffic to wake it.
const sendLoopInterval = 250 * time.Millisecond

// Config holds the knobs needed to construct a Server.
type Config struct {
	ListenAddr      string
	Password        string
	DefaultConfig   frame.StreamConfig
	IncludeAudio    bool
	HookScripts     []string // "event_type=script_path"
	HookWebhooks    []string // "event_type=webhook_url"
	HookStdioFormat string
	HookTimeout     string
	HookConcurrency int
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9090"
	}
	if c.Password == "" {
		c.Password = "123456"
	}
	if c.DefaultConfig == (frame.StreamConfig{}) {
		c.DefaultConfig = frame.StreamConfig{Width: 1280, Height: 720, FPS: 30, BitrateBps: 2_000_000}
	}
}

// Server is the stream server: listener socket, session registry, frame and
// command buses, current epoch, and the collaborators (encoder, recorder,
// device profile, clock) the control executor drives.
type Server struct {
	cfg Config
	log *zap.SugaredLogger

	encoder       collab.Encoder
	recorder      collab.Recorder
	deviceProfile collab.DeviceProfile
	clock         collab.Clock
	hookManager   *hooks.HookManager

	reg       *Registry
	frames    *framebus.Bus
	commands  *cmdbus.Bus
	recording *cmdbus.RecordingExecutor
	epoch     *epochState
	idle      *idleMonitor

	mu      sync.RWMutex
	ln      net.Listener
	closing bool

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	recordingActive atomic.Bool
	uiHidden        atomic.Bool
}

// New constructs an unstarted Server.
func New(cfg Config, encoder collab.Encoder, recorder collab.Recorder, deviceProfile collab.DeviceProfile, clock collab.Clock, log *zap.SugaredLogger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:           cfg,
		log:           log.With("component", "stream_server"),
		encoder:       encoder,
		recorder:      recorder,
		deviceProfile: deviceProfile,
		clock:         clock,
		hookManager:   newHookManager(cfg, log),
		reg:           NewRegistry(),
		frames:        framebus.New(),
		commands:      cmdbus.New(),
		recording:     cmdbus.NewRecordingExecutor(),
		epoch:         newEpochState(),
		idle:          newIdleMonitor(),
	}
}

// Start binds the listener and launches the accept, fan-out, and control
// loops under a joint errgroup: the first of them to return an error
// cancels the shared context so the others unwind too. Safe to call only
// once.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return errors.New("stream server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.ln = ln
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	s.ctx = egCtx
	s.cancel = cancel
	s.eg = eg
	s.mu.Unlock()

	s.log.Infow("stream server listening", "addr", ln.Addr().String())

	eg.Go(func() error { s.acceptLoop(); return nil })
	eg.Go(func() error { s.fanOutLoop(); return nil })
	eg.Go(func() error { s.controlLoop(); return nil })

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener, every live session, and the buses, then waits
// for all loops to exit. Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.ln == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	ln := s.ln
	s.ln = nil
	cancel := s.cancel
	eg := s.eg
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = ln.Close()

	for _, sess := range s.reg.Snapshot() {
		_ = sess.Close()
	}

	s.frames.Close()
	s.commands.Close()
	s.recording.Close()

	if eg != nil {
		_ = eg.Wait()
	}

	if s.hookManager != nil {
		_ = s.hookManager.Close()
	}

	s.log.Infow("stream server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if closing {
				return
			}
			s.log.Warnw("accept error", "error", err)
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	codec := wire.NewCodec(conn)

	admit := func() bool { return s.reg.Count() < MaxAuthenticatedSessions }
	result, err := session.ServerHandshake(codec, s.cfg.Password, nil, admit)
	if err != nil {
		s.log.Debugw("handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	sess := session.New(conn, codec, result, session.FrameQueueTierMedium, s.log)
	if err := s.reg.Add(sess); err != nil {
		// Lost the race against another connection between the admit
		// check and Add; reject without fingerprinting the handshake
		// (the wire exchange already completed identically either way).
		_ = sess.Close()
		return
	}
	s.triggerHook(hooks.EventSessionAuth, sess.ID, s.epoch.Current(), nil)

	cfg := s.epoch.LastConfig()
	if cfg == (frame.StreamConfig{}) {
		cfg = s.cfg.DefaultConfig
	}
	_ = session.SendStreamAccepted(codec, s.epoch.Current(), cfg)
	if csd, ok := s.epoch.LastCSD(); ok {
		_ = session.SendCSD(codec, csd)
	}
	_ = session.SendStreamState(codec, frame.StreamStateReconfiguring, s.epoch.Current())

	defer func() {
		s.reg.Remove(sess, s.epoch.LastConfig(), s.epoch.Current())
		_ = sess.Close()
		s.triggerHook(hooks.EventConnectionClose, sess.ID, s.epoch.Current(), nil)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sess.SendLoop(sendLoopInterval)
	}()

	s.readLoop(sess, codec)
	wg.Wait()
}

// readLoop processes inbound control traffic from one viewer until the
// connection errors out or is closed. It never touches the encoder
// directly: every request that needs to cross into the control domain is
// posted to the command bus.
func (s *Server) readLoop(sess *session.Session, codec *wire.Codec) {
	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			return
		}
		sess.Touch()
		switch msg.Tag {
		case "PING":
			tsMs, _ := msg.GetInt64("tsMs")
			_ = sess.PostControl(wire.NewMessage("PONG").
				WithInt64("tsMs", tsMs).
				WithInt64("srvMs", s.clock.Now().UnixMilli()))
		case "CAPS":
			s.handleCaps(sess, msg)
		case "SET_STREAM":
			s.handleSetStream(msg)
		case "START_RECORDING":
			_ = s.commands.Post(cmdbus.Command{Kind: cmdbus.StartRecording, IncludeAudio: s.cfg.IncludeAudio})
		case "STOP_RECORDING":
			_ = s.commands.Post(cmdbus.Command{Kind: cmdbus.StopRecording})
		case "REQ_KEYFRAME":
			_ = s.commands.Post(cmdbus.Command{Kind: cmdbus.RequestKeyframe})
		case "RESUME":
			s.handleResume(sess, msg)
		case "AUDIO_FRAME":
			s.handleAudioFrame(codec, msg)
		}
	}
}

// handleAudioFrame consumes an upstream (talkback) AUDIO_FRAME payload from
// a viewer. It never touches the encoder/recorder lock directly from this
// goroutine beyond the same best-effort RecordingSink write OnFrame uses.
// The payload buffer comes from bufpool: it is read, handed synchronously to
// the recording sink (which, like every RecordingSink, must not retain it
// past the call), and returned to the pool before this function returns.
func (s *Server) handleAudioFrame(codec *wire.Codec, msg wire.Message) {
	size, _ := msg.GetUint32("size")
	buf := bufpool.Get(int(size))
	defer bufpool.Put(buf)
	payload := buf[:size]
	if err := codec.ReadPayloadInto(payload); err != nil {
		return
	}
	dir, _ := msg.Get("dir")
	if dir != string(frame.AudioUp) {
		return
	}
	tsUs, _ := msg.GetInt64("tsUs")
	rate, _ := msg.GetUint32("rate")
	ch, _ := msg.GetUint8("ch")
	if s.recordingActive.Load() {
		if sink, ok := s.recorder.(collab.RecordingSink); ok {
			sink.WriteAudioFrame(frame.AudioFrame{
				Dir: frame.AudioUp, Format: frame.AudioPCM, Payload: payload,
				PTSUs: tsUs, SampleRate: rate, Channels: ch,
			})
		}
	}
}

// handleCaps stores the viewer's reported capability envelope on its
// session for reconfigure's arbitration pass and replies CAPS_OK. A
// malformed CAPS line (any of the three fields missing or not a valid u32)
// is silently ignored per the grammar's parser contract: no state change,
// no reply.
func (s *Server) handleCaps(sess *session.Session, msg wire.Message) {
	maxWidth, ok1 := msg.GetUint32("maxWidth")
	maxHeight, ok2 := msg.GetUint32("maxHeight")
	maxBitrate, ok3 := msg.GetUint32("maxBitrate")
	if !ok1 || !ok2 || !ok3 {
		return
	}
	sess.SetCaps(frame.ViewerCaps{MaxWidth: maxWidth, MaxHeight: maxHeight, MaxBitrateBps: maxBitrate})
	_ = sess.PostControl(wire.NewMessage("CAPS_OK"))
}

func (s *Server) handleSetStream(msg wire.Message) {
	width, _ := msg.GetUint32("width")
	height, _ := msg.GetUint32("height")
	fps, _ := msg.GetUint8("fps")
	bitrate, _ := msg.GetUint32("bitrate")
	_ = s.commands.Post(cmdbus.Command{
		Kind: cmdbus.ReconfigureStream,
		Config: frame.StreamConfig{
			Width: width, Height: height, FPS: fps, BitrateBps: bitrate,
		},
	})
}

func (s *Server) handleResume(sess *session.Session, msg wire.Message) {
	sessionID, _ := msg.Get("session")
	entry, ok := s.reg.TryResume(sessionID)
	if !ok {
		_ = sess.PostControl(wire.NewMessage("RESUME_FAIL"))
		return
	}
	sess.SetEpoch(entry.epoch)
	_ = sess.PostControl(wire.NewMessage("RESUME_OK"))
	s.triggerHook(hooks.EventSessionResumed, sess.ID, entry.epoch, nil)
	_ = s.commands.Post(cmdbus.Command{Kind: cmdbus.RequestKeyframe})
}

// fanOutLoop is the single consumer of the frame bus. It hands every frame
// to every registered session's own queue, which absorbs that session's
// slowness without blocking delivery to the others. It also watches for the
// first keyframe of a freshly-bumped epoch to flip STREAM_STATE to Active.
func (s *Server) fanOutLoop() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.frames.WaitChan():
		}
		for {
			f, ok := s.frames.Poll()
			if !ok {
				break
			}
			s.deliverFrame(f)
		}
	}
}

func (s *Server) deliverFrame(f frame.EncodedFrame) {
	for _, sess := range s.reg.Snapshot() {
		if !sess.PublishFrame(f) {
			s.triggerHook(hooks.EventKeyframeDrop, sess.ID, f.Epoch, nil)
		}
	}
	if f.IsKeyframe && s.epoch.MarkFirstKeyframeSeen() {
		s.broadcastControl(wire.NewMessage("STREAM_STATE").
			WithUint64("code", uint64(frame.StreamStateActive)).
			WithUint64("epoch", uint64(f.Epoch)))
		s.triggerHook(hooks.EventStreamActive, "", f.Epoch, nil)
	}
}

func (s *Server) broadcastControl(m wire.Message) {
	for _, sess := range s.reg.Snapshot() {
		_ = sess.PostControl(m)
	}
}

// controlLoop is the single consumer of the command bus, i.e. the Control
// execution domain. It is the only place the encoder lock is touched, and
// it never performs filesystem I/O itself: recording start/stop is
// re-posted to the recording executor.
func (s *Server) controlLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case cmd, ok := <-s.commands.Commands():
			if !ok {
				return
			}
			s.handleCommand(cmd)
		}
	}
}

func (s *Server) handleCommand(cmd cmdbus.Command) {
	switch cmd.Kind {
	case cmdbus.RequestKeyframe:
		_ = s.encoder.RequestKeyframe()
	case cmdbus.AdjustBitrate:
		_ = s.encoder.SetBitrate(cmd.BitrateBps)
	case cmdbus.ReconfigureStream:
		s.reconfigure(cmd.Config)
	case cmdbus.RecoverEncoder:
		s.reconfigure(s.epoch.LastConfig())
	case cmdbus.StartRecording:
		includeAudio := cmd.IncludeAudio
		s.recording.Submit(func() {
			if err := s.recorder.Start(includeAudio); err == nil {
				s.recordingActive.Store(true)
				s.triggerHook(hooks.EventRecordingStart, "", s.epoch.Current(),
					map[string]interface{}{"include_audio": includeAudio})
			}
		})
	case cmdbus.StopRecording:
		s.recording.Submit(func() {
			if err := s.recorder.Stop(); err == nil {
				s.recordingActive.Store(false)
				s.triggerHook(hooks.EventRecordingStop, "", s.epoch.Current(), nil)
			}
		})
	case cmdbus.SwitchCamera:
		s.recording.Submit(func() { s.recorder.OnCameraSwitched() })
	}
	s.evaluateIdle()
}

// arbitratedCaps collects every live session's reported ViewerCaps and
// reduces them to the minimum of requested maxima per §4.4 step 6.
// ok is false when no live session has reported caps yet, in which case
// reconfigure must not clamp anything.
func (s *Server) arbitratedCaps() (frame.ViewerCaps, bool) {
	var caps []frame.ViewerCaps
	for _, sess := range s.reg.Snapshot() {
		if c, ok := sess.Caps(); ok {
			caps = append(caps, c)
		}
	}
	return ArbitrateCaps(caps)
}

// reconfigure arbitrates cmd against every live session's caps and, if the
// result actually differs from the current config, bumps the epoch and
// drives the handshake-epoch broadcast sequence.
func (s *Server) reconfigure(cmd frame.StreamConfig) {
	current := s.epoch.LastConfig()
	target := cmd
	if arbitrated, ok := s.arbitratedCaps(); ok {
		if arbitrated.MaxWidth != 0 && target.Width > arbitrated.MaxWidth {
			target.Width = arbitrated.MaxWidth
		}
		if arbitrated.MaxHeight != 0 && target.Height > arbitrated.MaxHeight {
			target.Height = arbitrated.MaxHeight
		}
		if arbitrated.MaxBitrateBps != 0 && target.BitrateBps > arbitrated.MaxBitrateBps {
			target.BitrateBps = arbitrated.MaxBitrateBps
		}
	}
	if s.deviceProfile != nil && s.deviceProfile.PreferBufferMode() {
		target.Width, target.Height, target.FPS = current.Width, current.Height, current.FPS
	}
	if target == current {
		return // identical parameters never bump the epoch
	}

	if err := s.encoder.Reconfigure(target); err != nil {
		s.log.Warnw("encoder reconfigure failed", "error", err)
		return
	}
	width, height := s.encoder.Dimensions()
	if width != 0 {
		target.Width = width
	}
	if height != 0 {
		target.Height = height
	}

	epoch := s.epoch.Bump()
	s.triggerHook(hooks.EventEpochChanged, "", epoch, map[string]interface{}{
		"width": target.Width, "height": target.Height, "fps": target.FPS, "bitrate_bps": target.BitrateBps,
	})
	s.broadcastControl(wire.NewMessage("STREAM_ACCEPTED").
		WithUint64("epoch", uint64(epoch)).
		WithUint64("width", uint64(target.Width)).
		WithUint64("height", uint64(target.Height)).
		WithUint64("fps", uint64(target.FPS)).
		WithUint64("bitrate", uint64(target.BitrateBps)))
	s.broadcastControl(wire.NewMessage("STREAM_STATE").
		WithUint64("code", uint64(frame.StreamStateReconfiguring)).
		WithUint64("epoch", uint64(epoch)))
	s.epoch.SetCSD(frame.CodecSpecificData{Epoch: epoch}, target)
}

// OnCodecSpecificData is called by the encoder's producer side whenever it
// (re)emits SPS/PPS; it caches the CSD under the current epoch and
// broadcasts it to every live session.
func (s *Server) OnCodecSpecificData(csd frame.CodecSpecificData) {
	csd.Epoch = s.epoch.Current()
	s.epoch.SetCSD(csd, s.epoch.LastConfig())
	m := wire.NewMessage("CSD").
		WithUint64("epoch", uint64(csd.Epoch)).
		WithUint64("sps", uint64(len(csd.SPS))).
		WithUint64("pps", uint64(len(csd.PPS)))
	for _, sess := range s.reg.Snapshot() {
		_ = sess.PostControl(m, csd.SPS, csd.PPS)
	}
}

// OnFrame is called by the encoder's producer side for every encoded access
// unit; it stamps the current epoch and publishes onto the shared frame bus.
func (s *Server) OnFrame(f frame.EncodedFrame) {
	f.Epoch = s.epoch.Current()
	if !s.frames.Publish(f) {
		s.triggerHook(hooks.EventKeyframeDrop, "", f.Epoch, nil)
	}
	if s.recordingActive.Load() {
		if sink, ok := s.recorder.(collab.RecordingSink); ok {
			sink.WriteVideoFrame(f)
		}
	}
}

// OnAudioFrame is called by the audio source engine for every downstream
// audio packet; talkback (upstream) audio is handled by the session read
// loop instead, since it arrives per-viewer rather than from the shared
// producer side. The packet is recorded (if a recording is active) and, independently
// of recording state, fanned out live to every viewer session exactly like
// OnFrame fans out video.
func (s *Server) OnAudioFrame(f frame.AudioFrame) {
	if s.recordingActive.Load() {
		if sink, ok := s.recorder.(collab.RecordingSink); ok {
			sink.WriteAudioFrame(f)
		}
	}
	if f.Dir != frame.AudioDown {
		return
	}
	s.broadcastAudioFrame(f)
}

// broadcastAudioFrame fans a downstream audio packet out to every live
// session as AUDIO_FRAME|dir=down|format=...|size=N + payload. AAC packets
// are prefixed with a 7-byte ADTS header per §6 ("AAC downstream"); PCM
// packets go out unframed.
func (s *Server) broadcastAudioFrame(f frame.AudioFrame) {
	payloads := [][]byte{f.Payload}
	size := len(f.Payload)
	if f.Format == frame.AudioAAC {
		hdr, err := aac.BuildHeader(len(f.Payload), f.SampleRate, f.Channels)
		if err != nil {
			s.log.Warnw("aac header build failed", "error", err)
			return
		}
		payloads = [][]byte{hdr[:], f.Payload}
		size += len(hdr)
	}
	m := wire.NewMessage("AUDIO_FRAME").
		WithString("dir", string(frame.AudioDown)).
		WithString("format", string(f.Format)).
		WithInt64("tsUs", f.PTSUs).
		WithUint64("rate", uint64(f.SampleRate)).
		WithUint64("ch", uint64(f.Channels)).
		WithUint64("size", uint64(size))
	for _, sess := range s.reg.Snapshot() {
		_ = sess.PostControl(m, payloads...)
	}
}

// OnRecoveryNeeded is called when the encoder's producer side detects a
// stall or keyframe drought; it posts RecoverEncoder rather than touching
// the encoder directly, per the golden rule that only the control thread
// ever holds the encoder lock.
func (s *Server) OnRecoveryNeeded(reason string) {
	s.triggerHook(hooks.EventEncoderRecover, "", s.epoch.Current(), map[string]interface{}{"reason": reason})
	_ = s.commands.Post(cmdbus.Command{Kind: cmdbus.RecoverEncoder})
}

var _ collab.EncodedFrameProducer = (*Server)(nil)

// SetUIHidden feeds the idle monitor's UI-visibility condition.
func (s *Server) SetUIHidden(hidden bool) {
	s.uiHidden.Store(hidden)
	s.evaluateIdle()
}

// SessionCount reports the number of currently registered viewer sessions.
// It satisfies diag.StatusProvider.
func (s *Server) SessionCount() int {
	return s.reg.Count()
}

// CurrentEpoch reports the server's current stream epoch. It satisfies
// diag.StatusProvider.
func (s *Server) CurrentEpoch() uint32 {
	return s.epoch.Current()
}

// RecordingActive reports whether a recording is currently in progress. It
// satisfies diag.StatusProvider.
func (s *Server) RecordingActive() bool {
	return s.recordingActive.Load()
}

func (s *Server) evaluateIdle() {
	cond := idleConditions{
		SessionCount: s.reg.Count(),
		Recording:    s.recordingActive.Load(),
		UIHidden:     s.uiHidden.Load(),
	}
	switch s.idle.Evaluate(cond) {
	case "enter":
		if s.deviceProfile == nil {
			return
		}
		ladder := s.deviceProfile.ResolutionLadder()
		if len(ladder) > 0 {
			lowPower := ladder[0]
			_ = s.encoder.Reconfigure(lowPower)
			_ = s.encoder.SetBitrate(lowPower.BitrateBps)
		}
	case "exit":
		_ = s.encoder.Reconfigure(s.epoch.LastConfig())
	}
}

func (s *Server) triggerHook(evt hooks.EventType, sessionID string, epoch uint32, data map[string]interface{}) {
	if s.hookManager == nil {
		return
	}
	e := hooks.NewEvent(evt).WithSessionID(sessionID).WithEpoch(epoch)
	for k, v := range data {
		e.WithData(k, v)
	}
	s.hookManager.TriggerEvent(context.Background(), *e)
}

func newHookManager(cfg Config, log *zap.SugaredLogger) *hooks.HookManager {
	hc := hooks.HookConfig{
		Timeout:     cfg.HookTimeout,
		Concurrency: cfg.HookConcurrency,
		StdioFormat: cfg.HookStdioFormat,
	}
	if hc.Timeout == "" {
		hc.Timeout = "30s"
	}
	if hc.Concurrency == 0 {
		hc.Concurrency = 10
	}
	mgr := hooks.NewHookManager(hc, log)

	for i, spec := range cfg.HookScripts {
		eventType, path, ok := splitHookSpec(spec)
		if !ok {
			log.Warnw("invalid shell hook spec, skipping", "spec", spec)
			continue
		}
		hook := hooks.NewShellHook(shellHookID(i), path, 30*time.Second)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			log.Warnw("failed to register shell hook", "spec", spec, "error", err)
		}
	}
	for i, spec := range cfg.HookWebhooks {
		eventType, url, ok := splitHookSpec(spec)
		if !ok {
			log.Warnw("invalid webhook hook spec, skipping", "spec", spec)
			continue
		}
		hook := hooks.NewWebhookHook(webhookHookID(i), url, 30*time.Second)
		if err := mgr.RegisterHook(eventType, hook); err != nil {
			log.Warnw("failed to register webhook hook", "spec", spec, "error", err)
		}
	}
	return mgr
}

// splitHookSpec parses an "event_type=target" hook configuration entry.
func splitHookSpec(spec string) (eventType hooks.EventType, target string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			return hooks.EventType(spec[:i]), spec[i+1:], true
		}
	}
	return "", "", false
}

func shellHookID(i int) string   { return "shell_" + strconv.Itoa(i) }
func webhookHookID(i int) string { return "webhook_" + strconv.Itoa(i) }
