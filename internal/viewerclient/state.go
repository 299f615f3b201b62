// Package viewerclient implements the viewer-side mirror of
// internal/session: connect/handshake, the decode queue with adaptive
// jitter buffering, epoch gating, server-authoritative STREAM_STATE
// tracking, watchdogs, reconnect backoff, and upstream talkback.
package viewerclient

import (
	"fmt"
	"sync"
)

// ConnectionState is the viewer's lifecycle state, mirroring the server's
// per-session state machine from the client's point of view.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateAuthenticated
	StateStreaming
	StateRecovering
	StateIdle
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateStreaming:
		return "Streaming"
	case StateRecovering:
		return "Recovering"
	case StateIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// transitions enumerates the edges the client may cross on its own
// (dial/handshake progress, watchdog downgrades, server-authoritative
// STREAM_STATE mirroring). Disconnected is reachable from any state — a
// socket error or a deliberate background-close can happen at any point —
// so it is handled separately in machine.To rather than listed here.
var transitions = map[ConnectionState]map[ConnectionState]bool{
	StateDisconnected:  {StateConnecting: true},
	StateConnecting:    {StateConnected: true},
	StateConnected:     {StateAuthenticated: true, StateStreaming: true, StateRecovering: true, StateIdle: true},
	StateAuthenticated: {StateStreaming: true, StateConnected: true, StateRecovering: true, StateIdle: true},
	StateStreaming:     {StateRecovering: true, StateConnected: true, StateIdle: true},
	StateRecovering:    {StateStreaming: true, StateConnected: true, StateIdle: true},
}

// machine guards ConnectionState with a mutex; every Client embeds one.
type machine struct {
	mu    sync.Mutex
	state ConnectionState
}

func newMachine() *machine { return &machine{state: StateDisconnected} }

// Get returns the current state.
func (m *machine) Get() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To attempts a transition to next, returning an error if the edge is not
// legal from the current state. Disconnected is always legal.
func (m *machine) To(next ConnectionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next == StateDisconnected {
		m.state = StateDisconnected
		return nil
	}
	if !transitions[m.state][next] {
		return fmt.Errorf("viewerclient: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

// streamStateToConnection maps a server-authoritative STREAM_STATE code to
// the connection state the client mirrors, per the state-authority rule:
// once STREAM_STATE has been observed, the client no longer infers its
// video state from frame/CSD arrival.
func streamStateToConnection(code uint32) (ConnectionState, bool) {
	switch code {
	case 1:
		return StateStreaming, true
	case 2:
		return StateRecovering, true
	case 3:
		return StateConnected, true
	case 4:
		return StateIdle, true
	default:
		return 0, false
	}
}
