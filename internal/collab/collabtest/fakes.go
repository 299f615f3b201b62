// Package collabtest provides in-memory fakes for the collab interfaces, for
// use in streamserver/session/viewerclient tests that need a deterministic
// encoder, recorder, audio source, device profile, and clock.
package collabtest

import (
	"sync"
	"time"

	"github.com/duskwatch/camstream/internal/collab"
	"github.com/duskwatch/camstream/internal/frame"
)

// FakeEncoder records every call it receives and reports a fixed
// (width, height) regardless of what Start/Reconfigure requested, to
// exercise the "encoder ignores requested dims" STREAM_ACCEPTED path.
type FakeEncoder struct {
	mu              sync.Mutex
	Started         bool
	Stopped         bool
	LastConfig      frame.StreamConfig
	BitrateCalls    []uint32
	KeyframeCalls   int
	ReportedWidth   uint32
	ReportedHeight  uint32
	StartErr        error
	ReconfigureErr  error
}

func NewFakeEncoder(width, height uint32) *FakeEncoder {
	return &FakeEncoder{ReportedWidth: width, ReportedHeight: height}
}

func (e *FakeEncoder) Start(cfg frame.StreamConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.Started = true
	e.LastConfig = cfg
	return nil
}

func (e *FakeEncoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stopped = true
	return nil
}

func (e *FakeEncoder) SetBitrate(bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BitrateCalls = append(e.BitrateCalls, bps)
	return nil
}

func (e *FakeEncoder) RequestKeyframe() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.KeyframeCalls++
	return nil
}

func (e *FakeEncoder) Reconfigure(cfg frame.StreamConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ReconfigureErr != nil {
		return e.ReconfigureErr
	}
	e.LastConfig = cfg
	return nil
}

func (e *FakeEncoder) Dimensions() (uint32, uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ReportedWidth, e.ReportedHeight
}

// FakeRecorder records its lifecycle calls without touching a filesystem. It
// also implements collab.RecordingSink so tests can assert on frames a
// production Server would have fed to the recorder while active.
type FakeRecorder struct {
	mu              sync.Mutex
	Active          bool
	IncludeAudio    bool
	CameraSwitches  int
	StartErr        error
	VideoFrames     []frame.EncodedFrame
	AudioFrames     []frame.AudioFrame
}

func (r *FakeRecorder) Start(includeAudio bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.Active = true
	r.IncludeAudio = includeAudio
	return nil
}

func (r *FakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Active = false
	return nil
}

func (r *FakeRecorder) OnCameraSwitched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CameraSwitches++
}

// WriteVideoFrame records f for later assertion. f.Payload is copied rather
// than retained by reference: callers on the real hot path may reuse or
// recycle (e.g. via internal/bufpool) the backing array the instant this
// call returns, same as the production FLV recorder, which writes it
// straight through to an io.Writer and never holds onto it either.
func (r *FakeRecorder) WriteVideoFrame(f frame.EncodedFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.Payload = append([]byte(nil), f.Payload...)
	r.VideoFrames = append(r.VideoFrames, f)
}

// WriteAudioFrame records f for later assertion, copying f.Payload for the
// same reason WriteVideoFrame does.
func (r *FakeRecorder) WriteAudioFrame(f frame.AudioFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.Payload = append([]byte(nil), f.Payload...)
	r.AudioFrames = append(r.AudioFrames, f)
}

// RecordedVideoFrames returns a snapshot of video frames written so far.
func (r *FakeRecorder) RecordedVideoFrames() []frame.EncodedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame.EncodedFrame, len(r.VideoFrames))
	copy(out, r.VideoFrames)
	return out
}

// RecordedAudioFrames returns a snapshot of audio frames written so far.
func (r *FakeRecorder) RecordedAudioFrames() []frame.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame.AudioFrame, len(r.AudioFrames))
	copy(out, r.AudioFrames)
	return out
}

// FakeDeviceProfile is a static DeviceProfile fixture.
type FakeDeviceProfile struct {
	BufferMode       bool
	FPSGovernor      bool
	DynamicBitrate   bool
	Ladder           []frame.StreamConfig
}

func (p FakeDeviceProfile) PreferBufferMode() bool             { return p.BufferMode }
func (p FakeDeviceProfile) AllowFPSGovernor() bool              { return p.FPSGovernor }
func (p FakeDeviceProfile) AllowDynamicBitrate() bool           { return p.DynamicBitrate }
func (p FakeDeviceProfile) ResolutionLadder() []frame.StreamConfig { return p.Ladder }

// FakeClock is a manually-advanced Clock for deterministic watchdog tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{now: start} }

func (c *FakeClock) NowUs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.UnixMicro()
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	_ collab.Recorder      = (*FakeRecorder)(nil)
	_ collab.RecordingSink = (*FakeRecorder)(nil)
	_ collab.Encoder       = (*FakeEncoder)(nil)
	_ collab.DeviceProfile = FakeDeviceProfile{}
	_ collab.Clock         = (*FakeClock)(nil)
)
