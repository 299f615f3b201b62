// Package recorder persists the live stream to an FLV file on disk. Start and
// Stop run on the recording executor (internal/cmdbus); frame writes arrive
// from the stream server's frame-producer and session read goroutines while
// a recording is active. It never touches socket or encoder state directly.
package recorder

// FLV Recorder
// ------------
// Minimal FLV file writer used to optionally persist the published stream.
// Scope is intentionally small:
//   * Writes fixed FLV header (audio+video flags set) once
//   * Writes video (type 0x09) tags from EncodedFrame and audio (type 0x08)
//     tags from AudioFrame
//   * Tag format: 11 byte tag header + data + 4 byte PreviousTagSize
//   * Graceful degradation: on any write error the recorder disables itself;
//     the live stream continues unaffected.
// No metadata/script tags are written.

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/duskwatch/camstream/internal/frame"
)

const (
	tagTypeAudio uint8 = 8
	tagTypeVideo uint8 = 9
)

// Recorder persists encoded video/audio frames into a single FLV file.
// Its methods are called from more than one goroutine (the recording
// executor and the stream server's frame writers); the mutex serializes
// every write, the close, and the Disabled() status check.
type Recorder struct {
	mu           sync.Mutex
	w            io.WriteCloser
	logger       *zap.SugaredLogger
	wroteHeader  bool
	bytesWritten uint64
	includeAudio bool
}

// New creates a recorder writing to the supplied file path. If file creation
// fails it returns a nil *Recorder and the error.
func New(path string, includeAudio bool, logger *zap.SugaredLogger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder.create: %w", err)
	}
	r := &Recorder{w: f, logger: logger, includeAudio: includeAudio}
	if err := r.writeHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// newWithWriter allows tests to inject a failing writer (disk full simulation).
func newWithWriter(w io.WriteCloser, includeAudio bool, logger *zap.SugaredLogger) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Recorder{w: w, logger: logger, includeAudio: includeAudio}
	_ = r.writeHeader() // Ignore error in helper; tests can assert state.
	return r
}

// Disabled returns true if the recorder encountered a fatal write error.
func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w == nil
}

// writeHeader writes the 13-byte FLV header: 9 bytes header + 4 bytes PreviousTagSize0.
//
//	Signature:  'F','L','V'
//	Version:    0x01
//	Flags:      0x05 (audio + video present) or 0x01 (video only)
//	DataOffset: 0x00000009 (header length) big-endian
//	PreviousTagSize0: 0x00000000
func (r *Recorder) writeHeader() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil || r.wroteHeader {
		return nil
	}
	flags := byte(0x01)
	if r.includeAudio {
		flags = 0x05
	}
	header := []byte{'F', 'L', 'V', 0x01, flags, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
	if _, err := r.w.Write(header); err != nil {
		r.logger.Errorw("recorder write header failed", "err", err)
		r.closeLocked()
		return fmt.Errorf("recorder.header: %w", err)
	}
	r.wroteHeader = true
	r.bytesWritten += uint64(len(header))
	return nil
}

// WriteVideoFrame persists one encoded video frame as an FLV video tag.
// Safe to call after a failure; it no-ops when disabled.
func (r *Recorder) WriteVideoFrame(f frame.EncodedFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return
	}
	if !r.wroteHeader {
		r.mu.Unlock()
		err := r.writeHeader()
		r.mu.Lock()
		if err != nil {
			return
		}
	}
	ts := uint32(f.PTSUs / 1000)
	if err := r.writeTagLocked(tagTypeVideo, ts, f.Payload); err != nil {
		r.logger.Errorw("recorder video tag write failed", "err", err)
		r.closeLocked()
	}
}

// WriteAudioFrame persists one audio packet as an FLV audio tag. No-op if
// the recorder was created with includeAudio=false or has been disabled.
func (r *Recorder) WriteAudioFrame(f frame.AudioFrame) {
	if !r.includeAudio {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return
	}
	ts := uint32(f.PTSUs / 1000)
	if err := r.writeTagLocked(tagTypeAudio, ts, f.Payload); err != nil {
		r.logger.Errorw("recorder audio tag write failed", "err", err)
		r.closeLocked()
	}
}

// writeTagLocked writes a single FLV tag and its PreviousTagSize.
// Tag header (11 bytes):
//
//	0:   TagType
//	1-3: DataSize (big-endian 24-bit)
//	4-6: Timestamp lower 24 bits
//	7:   Timestamp extended (upper 8 bits)
//	8-10: StreamID (always 0)
func (r *Recorder) writeTagLocked(tagType uint8, timestamp uint32, payload []byte) error {
	dataSize := len(payload)
	if dataSize > 0xFFFFFF {
		return fmt.Errorf("recorder.tag: payload too large: %d", dataSize)
	}
	var hdr [11]byte
	hdr[0] = tagType
	hdr[1] = byte(dataSize >> 16)
	hdr[2] = byte(dataSize >> 8)
	hdr[3] = byte(dataSize)
	hdr[4] = byte(timestamp >> 16)
	hdr[5] = byte(timestamp >> 8)
	hdr[6] = byte(timestamp)
	hdr[7] = byte(timestamp >> 24)
	// StreamID 0 (bytes 8-10 already zero)

	if _, err := r.w.Write(hdr[:]); err != nil {
		return err
	}
	if dataSize > 0 {
		if _, err := r.w.Write(payload); err != nil {
			return err
		}
	}
	prevSize := uint32(11 + dataSize)
	var szBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], prevSize)
	if _, err := r.w.Write(szBuf[:]); err != nil {
		return err
	}
	r.bytesWritten += uint64(11 + dataSize + 4)
	return nil
}

// Close releases the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.w = nil
	return err
}
