// Package demosource provides a software EncodedFrameProducer/Encoder pair
// that synthesizes placeholder H.264-shaped access units on a timer. It
// exists so cmd/surveillance-server is runnable without real camera/encoder
// hardware, which spec.md §1 declares out of scope for this module; wiring a
// real hardware encoder means implementing collab.Encoder against the host's
// codec API and passing it to streamserver.New instead of this package.
//
// The generated payloads are not valid bitstream — they carry just enough
// shape (an IDR marker byte on keyframes) for the frame bus, session queues,
// and recorder to exercise their real code paths end to end.
package demosource

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskwatch/camstream/internal/collab"
	"github.com/duskwatch/camstream/internal/frame"
)

// gopSize is the number of frames between synthetic keyframes.
const gopSize = 30

// idrMarker and nonIdrMarker stand in for the first NAL header byte of a
// real H.264 access unit, enough for a human reading a hex dump or the
// recorder's FLV tags to tell frame types apart.
const (
	idrMarker    byte = 0x65
	nonIdrMarker byte = 0x41
)

// Source is both a collab.Encoder and the driver of a collab.Encoded
// FrameProducer sink: Start launches a goroutine that calls sink.OnFrame on
// a cadence derived from the negotiated FPS, and Stop halts it.
type Source struct {
	sink collab.EncodedFrameProducer
	log  *zap.SugaredLogger

	mu       sync.Mutex
	cfg      frame.StreamConfig
	cancel   context.CancelFunc
	seq      uint64
	running  bool
}

// New constructs a Source that hands frames to sink.
func New(sink collab.EncodedFrameProducer, log *zap.SugaredLogger) *Source {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Source{sink: sink, log: log.With("component", "demosource")}
}

// Start begins generating frames at cfg's FPS and immediately emits fresh
// CSD, matching a real encoder's "CSD on every (re)start" contract.
func (s *Source) Start(cfg frame.StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cfg = cfg
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.seq = 0
	go s.run(ctx, cfg)
	s.sink.OnCodecSpecificData(frame.CodecSpecificData{SPS: []byte{0x67, 0x42}, PPS: []byte{0x68, 0xCE}})
	return nil
}

// Stop halts frame generation.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	return nil
}

// SetBitrate records bps in the source's config. The synthetic payloads
// don't vary in size with bitrate, but the call is accepted so
// ADJUST_BITRATE round-trips cleanly.
func (s *Source) SetBitrate(bps uint32) error {
	s.mu.Lock()
	s.cfg.BitrateBps = bps
	s.mu.Unlock()
	return nil
}

// RequestKeyframe forces the next generated frame to carry the IDR marker.
func (s *Source) RequestKeyframe() error {
	s.mu.Lock()
	s.seq = 0
	s.mu.Unlock()
	return nil
}

// Reconfigure restarts generation at the new config and re-emits CSD, as a
// real encoder does on every resolution/fps change.
func (s *Source) Reconfigure(cfg frame.StreamConfig) error {
	_ = s.Stop()
	return s.Start(cfg)
}

// Dimensions reports the configured width/height verbatim: this software
// source never overrides the requested resolution the way a buffer-mode
// hardware encoder might.
func (s *Source) Dimensions() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Width, s.cfg.Height
}

func (s *Source) run(ctx context.Context, cfg frame.StreamConfig) {
	fps := cfg.FPS
	if fps == 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			seq := s.seq
			s.seq++
			s.mu.Unlock()

			isKey := seq%gopSize == 0
			marker := nonIdrMarker
			if isKey {
				marker = idrMarker
			}
			s.sink.OnFrame(frame.EncodedFrame{
				Payload:    []byte{marker, byte(seq), byte(seq >> 8)},
				IsKeyframe: isKey,
				PTSUs:      time.Since(start).Microseconds(),
			})
		}
	}
}

var _ collab.Encoder = (*Source)(nil)

// StaticDeviceProfile is a fixed collab.DeviceProfile used when no real
// device-profile probe (out of scope per spec.md §1) is wired in. It
// disables buffer mode so SET_STREAM's requested width/height/fps pass
// straight through, and offers a single-rung resolution ladder for the idle
// low-power path.
type StaticDeviceProfile struct {
	LowPower frame.StreamConfig
}

func (p StaticDeviceProfile) PreferBufferMode() bool    { return false }
func (p StaticDeviceProfile) AllowFPSGovernor() bool     { return true }
func (p StaticDeviceProfile) AllowDynamicBitrate() bool  { return true }
func (p StaticDeviceProfile) ResolutionLadder() []frame.StreamConfig {
	return []frame.StreamConfig{p.LowPower}
}

var _ collab.DeviceProfile = StaticDeviceProfile{}
