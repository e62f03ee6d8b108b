package conversation

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RecordMessageTimestamp notes an inbound message for rate tracking.
func (m *ContextManager) RecordMessageTimestamp(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc := m.user(userID)
	now := m.now()
	uc.MessageTimestamps = prune(append(uc.MessageTimestamps, now), now.Add(-m.cfg.EscapeWindow))
}

// ShouldTriggerEscape reports whether the user has hit the message-rate
// threshold and is not already escaped. It does not change state.
func (m *ContextManager) ShouldTriggerEscape(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return false
	}
	if uc.EscapedUntil != nil {
		return false
	}
	return len(uc.MessageTimestamps) >= m.cfg.EscapeThreshold
}

// TriggerEscape silences the user for d, or the configured default when d <= 0.
// The rate window is cleared so the user does not re-trigger on return.
func (m *ContextManager) TriggerEscape(userID string, d time.Duration) {
	if d <= 0 {
		d = m.cfg.EscapeDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uc := m.user(userID)
	until := m.now().Add(d)
	uc.EscapedUntil = &until
	uc.MessageTimestamps = nil

	m.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"duration": d,
		"until":    until,
	}).Info("Escape triggered")
}

// IsEscaped reports whether the user is currently silenced. An expired
// escape is cleared on the first check after it ends.
func (m *ContextManager) IsEscaped(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return false
	}
	if uc.EscapedUntil == nil {
		return false
	}
	if !m.now().Before(*uc.EscapedUntil) {
		uc.EscapedUntil = nil
		m.logger.WithField("user_id", userID).Info("Escape expired, re-engaging")
		return false
	}
	return true
}

// EscapeRemaining returns how long the user stays silenced, or zero.
func (m *ContextManager) EscapeRemaining(userID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return 0
	}
	if uc.EscapedUntil == nil {
		return 0
	}
	if left := uc.EscapedUntil.Sub(m.now()); left > 0 {
		return left
	}
	return 0
}

// ClearEscape lifts an escape unconditionally and reports whether one was set.
func (m *ContextManager) ClearEscape(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return false
	}
	if uc.EscapedUntil == nil {
		return false
	}
	uc.EscapedUntil = nil
	m.logger.WithField("user_id", userID).Info("Escape cleared manually")
	return true
}
