package streamserver

import (
	"sync"
	"sync/atomic"

	"github.com/duskwatch/camstream/internal/frame"
)

// epochState tracks the server-authoritative epoch and the last codec
// config/CSD stamped with it. Only the control thread calls Bump; readers
// anywhere else only call Current/LastCSD/LastConfig.
type epochState struct {
	current atomic.Uint32

	mu               sync.Mutex
	lastCSD          frame.CodecSpecificData
	haveCSD          atomic.Bool
	lastConf         frame.StreamConfig
	sawFirstKeyframe atomic.Bool
}

func newEpochState() *epochState {
	e := &epochState{}
	e.current.Store(1) // epoch starts at 1 per the spec's monotonic counter
	return e
}

// Current returns the current epoch.
func (e *epochState) Current() uint32 { return e.current.Load() }

// Bump increments the epoch and clears the first-keyframe-of-epoch latch,
// returning the new epoch. Called only when a ReconfigureStream actually
// changes parameters, or on RecoverEncoder.
func (e *epochState) Bump() uint32 {
	e.sawFirstKeyframe.Store(false)
	return e.current.Add(1)
}

// SetCSD records the codec-specific data (and the config it was produced
// for) for the current epoch, for replay to newly-admitted or resuming
// sessions.
func (e *epochState) SetCSD(csd frame.CodecSpecificData, cfg frame.StreamConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCSD = csd
	e.lastConf = cfg
	e.haveCSD.Store(true)
}

// LastCSD returns the most recently cached CodecSpecificData, or ok=false
// if the encoder has never started.
func (e *epochState) LastCSD() (frame.CodecSpecificData, bool) {
	if !e.haveCSD.Load() {
		return frame.CodecSpecificData{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCSD, true
}

// LastConfig returns the stream config last negotiated with the encoder.
func (e *epochState) LastConfig() frame.StreamConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastConf
}

// MarkFirstKeyframeSeen records that the fan-out loop has now handed the
// first keyframe of the current epoch to at least one session's write path;
// it returns true only the first time it is called for this epoch, which is
// the fan-out loop's cue to broadcast STREAM_STATE|Active.
func (e *epochState) MarkFirstKeyframeSeen() (firstTime bool) {
	return e.sawFirstKeyframe.CompareAndSwap(false, true)
}
