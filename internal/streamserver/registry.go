// Package streamserver owns the listener socket, the session registry, the
// frame and command buses, and the current epoch: everything the spec calls
// the stream server.
package streamserver

import (
	"sync"
	"time"

	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/session"
)

// MaxAuthenticatedSessions is the concurrent-viewer cap. Sessions beyond
// this are challenged (to avoid fingerprinting the cap by skipping straight
// to a refusal) and then closed with AUTH_FAIL.
const MaxAuthenticatedSessions = 8

// resumeWindow is how long a disconnected session's negotiated parameters
// are kept so a reconnecting client can RESUME instead of re-handshaking
// from scratch.
const resumeWindow = 30 * time.Second

// resumeEntry is what a registry remembers about a session after it
// disconnects, for the duration of resumeWindow.
type resumeEntry struct {
	config    frame.StreamConfig
	epoch     uint32
	expiresAt time.Time
}

// Registry tracks live sessions and recently-disconnected ones eligible for
// resume. All mutation happens behind a single mutex; critical sections are
// kept short per the concurrency model's shared-state rule.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	resumable map[string]resumeEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:  make(map[string]*session.Session),
		resumable: make(map[string]resumeEntry),
	}
}

// errAtCapacity marks a registration rejected purely because the server is
// already at MaxAuthenticatedSessions.
type errAtCapacity struct{}

func (errAtCapacity) Error() string { return "session registry at capacity" }

// Add registers s if the registry has room. Returns errAtCapacity otherwise,
// in which case the caller must send AUTH_FAIL and close the connection.
func (r *Registry) Add(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= MaxAuthenticatedSessions {
		return errAtCapacity{}
	}
	r.sessions[s.ID] = s
	return nil
}

// Remove drops s from the live set and records its negotiated parameters as
// resumable for resumeWindow.
func (r *Registry) Remove(s *session.Session, lastConfig frame.StreamConfig, epoch uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID)
	r.resumable[s.ID] = resumeEntry{
		config:    lastConfig,
		epoch:     epoch,
		expiresAt: time.Now().Add(resumeWindow),
	}
}

// TryResume looks up sessionID in the resumable set. ok is false if the id
// is unknown or its resume window has expired (in which case it is purged).
func (r *Registry) TryResume(sessionID string) (entry resumeEntry, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.resumable[sessionID]
	if !found {
		return resumeEntry{}, false
	}
	if time.Now().After(e.expiresAt) {
		delete(r.resumable, sessionID)
		return resumeEntry{}, false
	}
	delete(r.resumable, sessionID)
	return e, true
}

// Snapshot returns the currently live sessions. The caller must treat the
// slice as a point-in-time copy, not a live view.
func (r *Registry) Snapshot() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of currently registered (authenticated) sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ArbitrateCaps picks the minimum of every live session's requested maxima
// for a given field, per the spec's "pick the minimum of requested maxima
// when multiple sessions exist" arbitration rule. present reports whether
// any session had actually set a cap.
func ArbitrateCaps(caps []frame.ViewerCaps) (frame.ViewerCaps, bool) {
	if len(caps) == 0 {
		return frame.ViewerCaps{}, false
	}
	out := caps[0]
	for _, c := range caps[1:] {
		if c.MaxWidth < out.MaxWidth {
			out.MaxWidth = c.MaxWidth
		}
		if c.MaxHeight < out.MaxHeight {
			out.MaxHeight = c.MaxHeight
		}
		if c.MaxBitrateBps < out.MaxBitrateBps {
			out.MaxBitrateBps = c.MaxBitrateBps
		}
	}
	return out, true
}
