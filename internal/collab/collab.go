// Package collab declares the interfaces the streaming core consumes from
// collaborators that are deliberately out of scope for this module: camera
// capture, hardware encoder/decoder wrapping, audio hardware, and device
// profiling. Production wiring supplies real implementations; tests use the
// fakes in collabtest.
package collab

import (
	"time"

	"github.com/duskwatch/camstream/internal/frame"
)

// EncodedFrameProducer is the encoder-side source of video data. It pushes
// frames and codec-specific data into the core (typically straight onto the
// frame bus) and signals when the encoder needs to be cycled.
type EncodedFrameProducer interface {
	// OnFrame is called for every encoded access unit.
	OnFrame(f frame.EncodedFrame)
	// OnCodecSpecificData is called whenever the encoder (re)emits SPS/PPS,
	// i.e. on start and on every reconfigure.
	OnCodecSpecificData(csd frame.CodecSpecificData)
	// OnRecoveryNeeded is called when the producer detects an encoder stall
	// or a keyframe drought and wants the core to cycle the encoder.
	OnRecoveryNeeded(reason string)
}

// Encoder is the hardware H.264 encoder wrapper the command-bus consumer
// drives. Width/Height report what the encoder actually settled on, which
// may differ from the requested StreamConfig in buffer mode.
type Encoder interface {
	Start(cfg frame.StreamConfig) error
	Stop() error
	SetBitrate(bps uint32) error
	RequestKeyframe() error
	Reconfigure(cfg frame.StreamConfig) error
	Dimensions() (width, height uint32)
}

// Recorder is the file-based recording collaborator. It runs exclusively on
// the recording executor; the control loop never calls it directly from the
// same goroutine that touches encoder state.
type Recorder interface {
	Start(includeAudio bool) error
	Stop() error
	OnCameraSwitched()
}

// RecordingSink is an optional capability a Recorder may additionally
// implement to receive the live frame/audio stream while active. The stream
// server checks for it with a type assertion rather than widening Recorder
// itself, so fakes that only exercise lifecycle calls stay minimal.
type RecordingSink interface {
	WriteVideoFrame(f frame.EncodedFrame)
	WriteAudioFrame(f frame.AudioFrame)
}

// AudioSourceEngine is a multi-consumer PCM broadcast source with
// ref-counted hardware lifecycle: the microphone stays open as long as
// either a streaming or a recording consumer holds a reference.
type AudioSourceEngine interface {
	AcquireStreaming() (release func(), err error)
	AcquireRecording() (release func(), err error)
	Subscribe() (frames <-chan frame.AudioFrame, unsubscribe func())
}

// DeviceProfile describes the capabilities and policy preferences of the
// host device; the stream server consults it when arbitrating configs and
// deciding idle/low-power behavior.
type DeviceProfile interface {
	PreferBufferMode() bool
	AllowFPSGovernor() bool
	AllowDynamicBitrate() bool
	ResolutionLadder() []frame.StreamConfig
}

// Clock is a monotonic microsecond time source used for PTS stamping and
// watchdog deadlines, isolated from wall-clock adjustments and from
// time.Now() for testability.
type Clock interface {
	NowUs() int64
	Now() time.Time
}

// SystemClock is the production Clock backed by the real monotonic clock.
// NowUs counts microseconds since process start.
type SystemClock struct{}

var processStart = time.Now()

func (SystemClock) NowUs() int64   { return time.Since(processStart).Microseconds() }
func (SystemClock) Now() time.Time { return time.Now() }

var _ Clock = SystemClock{}
