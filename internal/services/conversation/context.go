package conversation

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// UserContext is the ephemeral conversational memory kept for one user.
type UserContext struct {
	UserID            string
	History           []models.MessageRecord
	JokeMentions      map[string][]time.Time
	LastInteraction   time.Time
	LoreMentioned     bool
	MessageTimestamps []time.Time
	EscapedUntil      *time.Time
}

// HistoryEntry is the (intent, topic) view of one remembered exchange.
type HistoryEntry struct {
	Intent string
	Topic  string
}

// Stats describes the context manager for diagnostics.
type Stats struct {
	UsersTracked   int
	MaxUsers       int
	HistoryPerUser int
	JokeDecay      time.Duration
}

// ContextOption customizes a ContextManager.
type ContextOption func(*ContextManager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) ContextOption {
	return func(m *ContextManager) { m.now = now }
}

// WithRand sets the random source used for lore callback rolls.
func WithRand(rng *rand.Rand) ContextOption {
	return func(m *ContextManager) { m.rng = rng }
}

// ContextManager tracks per-user history, running jokes, lore mentions and
// message rate. All state lives in memory and is lost on restart.
type ContextManager struct {
	mu     sync.Mutex
	users  map[string]*UserContext
	cfg    config.EngineConfig
	now    func() time.Time
	rng    *rand.Rand
	logger *logrus.Logger
}

// NewContextManager creates an empty manager tuned by cfg.
func NewContextManager(cfg config.EngineConfig, logger *logrus.Logger, opts ...ContextOption) *ContextManager {
	m := &ContextManager{
		users:  make(map[string]*UserContext),
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// user returns the context for userID, admitting it if needed. Caller holds mu.
func (m *ContextManager) user(userID string) *UserContext {
	now := m.now()
	uc, ok := m.users[userID]
	if !ok {
		if len(m.users) >= m.cfg.MaxTrackedUsers {
			m.evict(now)
		}
		uc = &UserContext{
			UserID:       userID,
			JokeMentions: make(map[string][]time.Time),
		}
		m.users[userID] = uc
		m.logger.WithField("user_id", userID).Debug("Created conversation context")
	}
	uc.LastInteraction = now
	return uc
}

// lookup returns the context for userID without admitting it or refreshing
// its activity. Caller holds mu.
func (m *ContextManager) lookup(userID string) (*UserContext, bool) {
	uc, ok := m.users[userID]
	return uc, ok
}

// evict drops users idle longer than StaleAfter. If none are stale the least
// recently active user is dropped so the map never grows past the cap.
func (m *ContextManager) evict(now time.Time) {
	cutoff := now.Add(-m.cfg.StaleAfter)
	removed := 0
	for id, uc := range m.users {
		if uc.LastInteraction.Before(cutoff) {
			delete(m.users, id)
			removed++
		}
	}

	if removed == 0 && len(m.users) >= m.cfg.MaxTrackedUsers {
		var oldestID string
		var oldest time.Time
		for id, uc := range m.users {
			if oldestID == "" || uc.LastInteraction.Before(oldest) {
				oldestID, oldest = id, uc.LastInteraction
			}
		}
		delete(m.users, oldestID)
		removed++
	}

	m.logger.WithFields(logrus.Fields{
		"removed": removed,
		"tracked": len(m.users),
	}).Info("Cleaned up conversation contexts")
}

// RecordMessage appends an exchange to the user's history and updates the
// running joke and lore trackers from content.
func (m *ContextManager) RecordMessage(userID, content, intentLabel, topic, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc := m.user(userID)
	now := m.now()

	uc.History = append(uc.History, models.MessageRecord{
		Content:   content,
		Intent:    intentLabel,
		Topic:     topic,
		Timestamp: now,
		Response:  response,
	})
	if over := len(uc.History) - m.cfg.HistorySize; over > 0 {
		uc.History = append([]models.MessageRecord(nil), uc.History[over:]...)
	}

	lower := strings.ToLower(content)
	if kw := m.cfg.JokeKeyword; kw != "" && strings.Contains(lower, kw) {
		uc.JokeMentions[kw] = prune(append(uc.JokeMentions[kw], now), now.Add(-m.cfg.JokeDecay))
	}
	uc.LoreMentioned = false
	for _, term := range m.cfg.LoreKeywords {
		if strings.Contains(lower, term) {
			uc.LoreMentioned = true
			break
		}
	}
}

// JokeIntensity counts recent mentions of keyword, capped.
func (m *ContextManager) JokeIntensity(userID, keyword string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return 0
	}
	mentions, ok := uc.JokeMentions[keyword]
	if !ok {
		return 0
	}
	mentions = prune(mentions, m.now().Add(-m.cfg.JokeDecay))
	uc.JokeMentions[keyword] = mentions

	if n := len(mentions); n < m.cfg.JokeIntensityCap {
		return n
	}
	return m.cfg.JokeIntensityCap
}

// DetectRepetition reports whether one of the last few exchanges had the
// same intent and the same topic, or no topic on both sides.
func (m *ContextManager) DetectRepetition(userID, intentLabel, topic string) bool {
	if intentLabel == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return false
	}
	history := uc.History
	if len(history) > m.cfg.RepetitionWindow {
		history = history[len(history)-m.cfg.RepetitionWindow:]
	}
	for _, rec := range history {
		if rec.Intent != intentLabel {
			continue
		}
		if topic != "" && rec.Topic != "" && strings.EqualFold(topic, rec.Topic) {
			return true
		}
		if topic == "" && rec.Topic == "" {
			return true
		}
	}
	return false
}

// ShouldLoreCallback rolls for a lore callback when the user's last recorded
// message mentioned a lore term. A successful roll consumes the flag.
func (m *ContextManager) ShouldLoreCallback(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok || !uc.LoreMentioned {
		return false
	}
	if m.rng.Float64() < m.cfg.LoreCallbackChance {
		uc.LoreMentioned = false
		return true
	}
	return false
}

// HistorySummary returns the user's remembered (intent, topic) pairs, oldest first.
func (m *ContextManager) HistorySummary(userID string) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return nil
	}
	history := uc.History
	out := make([]HistoryEntry, len(history))
	for i, rec := range history {
		out[i] = HistoryEntry{Intent: rec.Intent, Topic: rec.Topic}
	}
	return out
}

// History returns a copy of the user's remembered exchanges.
func (m *ContextManager) History(userID string) []models.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	uc, ok := m.lookup(userID)
	if !ok {
		return nil
	}
	return append([]models.MessageRecord(nil), uc.History...)
}

// Reset forgets everything about a user. It reports whether the user was tracked.
func (m *ContextManager) Reset(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return false
	}
	delete(m.users, userID)
	return true
}

// TrackedUsers returns the number of users currently held in memory.
func (m *ContextManager) TrackedUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// UserIDs lists tracked users in sorted order.
func (m *ContextManager) UserIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats reports occupancy and tuning of the manager.
func (m *ContextManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		UsersTracked:   len(m.users),
		MaxUsers:       m.cfg.MaxTrackedUsers,
		HistoryPerUser: m.cfg.HistorySize,
		JokeDecay:      m.cfg.JokeDecay,
	}
}

// prune keeps timestamps strictly after cutoff.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
