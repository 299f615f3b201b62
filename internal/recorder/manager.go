package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskwatch/camstream/internal/collab"
	"github.com/duskwatch/camstream/internal/frame"
)

// Manager adapts the FLV Recorder into the collab.Recorder lifecycle the
// control executor drives: Start opens a new timestamped file, Stop closes
// it, and WriteVideoFrame/WriteAudioFrame are safe to call (as no-ops) when
// no recording is active. It runs exclusively on the recording executor.
type Manager struct {
	dir string
	log *zap.SugaredLogger

	mu     sync.Mutex
	active *Recorder
	path   string
}

// NewManager creates a Manager that writes timestamped .flv files into dir,
// grounded on the teacher's initRecorder (stream-key + timestamp filename,
// MkdirAll before create).
func NewManager(dir string, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if dir == "" {
		dir = "recordings"
	}
	return &Manager{dir: dir, log: log.With("component", "recorder_manager")}
}

// Start opens a new recording file named "camstream_<timestamp>.flv" under
// the configured directory. Calling Start while already recording stops the
// previous file first.
func (m *Manager) Start(includeAudio bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		_ = m.active.Close()
		m.active = nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("recorder manager: create dir: %w", err)
	}
	filename := fmt.Sprintf("camstream_%s.flv", time.Now().Format("20060102_150405"))
	path := filepath.Join(m.dir, filename)
	rec, err := New(path, includeAudio, m.log)
	if err != nil {
		return err
	}
	m.active = rec
	m.path = path
	m.log.Infow("recording started", "path", path, "includeAudio", includeAudio)
	return nil
}

// Stop closes the active recording, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	err := m.active.Close()
	m.log.Infow("recording stopped", "path", m.path)
	m.active = nil
	m.path = ""
	return err
}

// OnCameraSwitched is a no-op for the FLV writer: camera switches affect
// encoder frames, not the recorded byte stream itself.
func (m *Manager) OnCameraSwitched() {}

// WriteVideoFrame forwards f to the active recording, if any.
func (m *Manager) WriteVideoFrame(f frame.EncodedFrame) {
	m.mu.Lock()
	rec := m.active
	m.mu.Unlock()
	if rec != nil {
		rec.WriteVideoFrame(f)
	}
}

// WriteAudioFrame forwards f to the active recording, if any.
func (m *Manager) WriteAudioFrame(f frame.AudioFrame) {
	m.mu.Lock()
	rec := m.active
	m.mu.Unlock()
	if rec != nil {
		rec.WriteAudioFrame(f)
	}
}

// Active reports whether a recording is currently open.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

var (
	_ collab.Recorder      = (*Manager)(nil)
	_ collab.RecordingSink = (*Manager)(nil)
)
