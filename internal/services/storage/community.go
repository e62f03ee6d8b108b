package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrWishNotFound is returned when a wish id is unknown in the guild.
var ErrWishNotFound = errors.New("wish not found")

// CommunityStore persists moderation warnings and community wishes.
type CommunityStore interface {
	// AddWarning stores w and returns the member's warning count after it.
	AddWarning(ctx context.Context, w models.Warning) (int, error)
	Warnings(ctx context.Context, guildID, userID string) ([]models.Warning, error)
	// ClearWarnings removes every warning of the member and returns how many were removed.
	ClearWarnings(ctx context.Context, guildID, userID string) (int, error)

	// AddWish stores w under a fresh id and returns it.
	AddWish(ctx context.Context, w models.Wish) (models.Wish, error)
	Wish(ctx context.Context, guildID string, id int64) (models.Wish, error)
	// Vote adds or withdraws voterID's vote. changed is false when the vote
	// was already in the requested state.
	Vote(ctx context.Context, guildID string, id int64, voterID string, up bool) (w models.Wish, changed bool, err error)
	GrantWish(ctx context.Context, guildID string, id int64) error
	RemoveWish(ctx context.Context, guildID string, id int64) error
	// TopWishes lists the n most voted wishes of kind; an empty kind lists all.
	TopWishes(ctx context.Context, guildID string, kind models.WishKind, n int) ([]models.Wish, error)

	Name() string
	Close() error
}

// OpenCommunity opens the store selected by cfg.Community.Store. The sqlite
// store shares the ledger's database file.
func OpenCommunity(cfg *config.Config, logger *logrus.Logger) (CommunityStore, error) {
	var (
		store CommunityStore
		err   error
	)
	switch cfg.Community.Store {
	case "sqlite":
		store, err = NewSQLiteCommunity(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open community store: %w", err)
		}
	case "memory", "":
		store = NewMemoryCommunity()
	default:
		return nil, fmt.Errorf("unsupported community store: %s", cfg.Community.Store)
	}
	logger.WithField("backend", store.Name()).Info("Community store ready")
	return store, nil
}

func rankWishes(wishes []models.Wish, n int) []models.Wish {
	sort.Slice(wishes, func(i, j int) bool {
		if wishes[i].Votes != wishes[j].Votes {
			return wishes[i].Votes > wishes[j].Votes
		}
		return wishes[i].ID < wishes[j].ID
	})
	if n > 0 && len(wishes) > n {
		wishes = wishes[:n]
	}
	return wishes
}
