package streamserver

import (
	"sync"
	"time"
)

// idleEntryHysteresis is how long the idle conditions (no authenticated
// sessions, not recording, UI reported hidden) must hold continuously
// before the server actually posts the low-power reconfiguration, so a
// brief viewer drop/reconnect does not flap the encoder in and out of
// low-power mode.
const idleEntryHysteresis = 10 * time.Second

// idleConditions is the snapshot of inputs the idle monitor evaluates.
type idleConditions struct {
	SessionCount int
	Recording    bool
	UIHidden     bool
}

func (c idleConditions) idleEligible() bool {
	return c.SessionCount == 0 && !c.Recording && c.UIHidden
}

// idleMonitor debounces idleConditions into a single Active/Idle decision
// with entry hysteresis. It has no exit hysteresis: any condition becoming
// false reverses the low-power mode immediately, since returning to full
// power is never something we want to delay.
type idleMonitor struct {
	mu          sync.Mutex
	eligible    bool
	eligibleAt  time.Time
	lowPower    bool
	now         func() time.Time
}

func newIdleMonitor() *idleMonitor {
	return &idleMonitor{now: time.Now}
}

// Evaluate feeds the latest conditions and returns the transition the
// caller should act on, if any. action is "" when no change is warranted.
func (m *idleMonitor) Evaluate(c idleConditions) (action string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !c.idleEligible() {
		m.eligible = false
		if m.lowPower {
			m.lowPower = false
			return "exit"
		}
		return ""
	}

	if !m.eligible {
		m.eligible = true
		m.eligibleAt = now
		return ""
	}

	if !m.lowPower && now.Sub(m.eligibleAt) >= idleEntryHysteresis {
		m.lowPower = true
		return "enter"
	}
	return ""
}

// LowPower reports whether the monitor currently believes the server is in
// low-power mode.
func (m *idleMonitor) LowPower() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lowPower
}
