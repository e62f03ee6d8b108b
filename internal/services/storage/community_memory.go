package storage

import (
	"context"
	"sync"

	"github.com/dreambot-go/internal/models"
)

type memberKey struct {
	guildID string
	userID  string
}

type wishEntry struct {
	wish   models.Wish
	voters map[string]struct{}
}

// MemoryCommunity keeps warnings and wishes in process memory.
type MemoryCommunity struct {
	mu       sync.Mutex
	warnings map[memberKey][]models.Warning
	wishes   map[int64]*wishEntry
	nextID   int64
}

func NewMemoryCommunity() *MemoryCommunity {
	return &MemoryCommunity{
		warnings: make(map[memberKey][]models.Warning),
		wishes:   make(map[int64]*wishEntry),
	}
}

func (m *MemoryCommunity) Name() string { return "memory" }

func (m *MemoryCommunity) AddWarning(_ context.Context, w models.Warning) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey{w.GuildID, w.UserID}
	m.warnings[key] = append(m.warnings[key], w)
	return len(m.warnings[key]), nil
}

func (m *MemoryCommunity) Warnings(_ context.Context, guildID, userID string) ([]models.Warning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Warning(nil), m.warnings[memberKey{guildID, userID}]...), nil
}

func (m *MemoryCommunity) ClearWarnings(_ context.Context, guildID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey{guildID, userID}
	n := len(m.warnings[key])
	delete(m.warnings, key)
	return n, nil
}

func (m *MemoryCommunity) AddWish(_ context.Context, w models.Wish) (models.Wish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	w.ID = m.nextID
	w.Votes = 0
	w.Granted = false
	m.wishes[w.ID] = &wishEntry{wish: w, voters: make(map[string]struct{})}
	return w, nil
}

// entry returns the wish if it belongs to guildID. Caller holds mu.
func (m *MemoryCommunity) entry(guildID string, id int64) (*wishEntry, error) {
	e, ok := m.wishes[id]
	if !ok || e.wish.GuildID != guildID {
		return nil, ErrWishNotFound
	}
	return e, nil
}

func (m *MemoryCommunity) Wish(_ context.Context, guildID string, id int64) (models.Wish, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(guildID, id)
	if err != nil {
		return models.Wish{}, err
	}
	return e.wish, nil
}

func (m *MemoryCommunity) Vote(_ context.Context, guildID string, id int64, voterID string, up bool) (models.Wish, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(guildID, id)
	if err != nil {
		return models.Wish{}, false, err
	}

	_, voted := e.voters[voterID]
	if voted == up {
		return e.wish, false, nil
	}
	if up {
		e.voters[voterID] = struct{}{}
	} else {
		delete(e.voters, voterID)
	}
	e.wish.Votes = len(e.voters)
	return e.wish, true, nil
}

func (m *MemoryCommunity) GrantWish(_ context.Context, guildID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.entry(guildID, id)
	if err != nil {
		return err
	}
	e.wish.Granted = true
	return nil
}

func (m *MemoryCommunity) RemoveWish(_ context.Context, guildID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.entry(guildID, id); err != nil {
		return err
	}
	delete(m.wishes, id)
	return nil
}

func (m *MemoryCommunity) TopWishes(_ context.Context, guildID string, kind models.WishKind, n int) ([]models.Wish, error) {
	m.mu.Lock()
	var out []models.Wish
	for _, e := range m.wishes {
		if e.wish.GuildID == guildID && (kind == "" || e.wish.Kind == kind) {
			out = append(out, e.wish)
		}
	}
	m.mu.Unlock()
	return rankWishes(out, n), nil
}

func (m *MemoryCommunity) Close() error { return nil }
