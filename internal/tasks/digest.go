package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
)

const digestPerKind = 5

// ErrNoDigestChannel is returned when the digest has nowhere to go.
var ErrNoDigestChannel = errors.New("no digest channel configured")

// WishRanker lists the most voted wishes of a guild.
type WishRanker interface {
	TopWishes(ctx context.Context, guildID string, kind models.WishKind, n int) ([]models.Wish, error)
}

// Digest posts the strongest wishes of each kind to a channel every interval.
type Digest struct {
	guildID   string
	channelID string
	interval  time.Duration
	sender    Sender
	wishes    WishRanker
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

// NewDigest creates the wish digest task.
func NewDigest(cfg *config.CommunityConfig, sender Sender, wishes WishRanker, localizer *i18n.Localizer, logger *logrus.Logger) *Digest {
	return &Digest{
		guildID:   cfg.DigestGuild,
		channelID: cfg.DigestChannel,
		interval:  cfg.DigestInterval,
		sender:    sender,
		wishes:    wishes,
		localizer: localizer,
		logger:    logger,
	}
}

// Run posts a digest once per interval until ctx is done.
func (d *Digest) Run(ctx context.Context) error {
	if d.channelID == "" || d.guildID == "" {
		d.logger.Info("Wish digest disabled: no channel configured")
		return nil
	}
	if d.interval <= 0 {
		d.logger.WithField("interval", d.interval).Warn("Wish digest disabled: invalid interval")
		return nil
	}

	d.logger.WithFields(logrus.Fields{
		"channel_id": d.channelID,
		"interval":   d.interval,
	}).Info("Wish digest task started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.PostOnce(ctx); err != nil {
				d.logger.WithError(err).Error("Failed to post wish digest")
			}
		}
	}
}

// PostOnce sends one digest. Nothing is sent when no wishes exist.
func (d *Digest) PostOnce(ctx context.Context) error {
	if d.channelID == "" {
		return ErrNoDigestChannel
	}

	text, total, err := d.render(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		d.logger.Debug("Wish digest skipped: no wishes")
		return nil
	}
	if _, err := d.sender.ChannelMessageSend(d.channelID, text); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"channel_id": d.channelID,
		"wishes":     total,
	}).Info("Wish digest posted")
	return nil
}

func (d *Digest) render(ctx context.Context) (string, int, error) {
	lines := []string{d.localizer.Default(i18n.MsgDigestHeader, nil)}
	total := 0
	for _, kind := range []models.WishKind{models.WishVideo, models.WishChannel, models.WishOther} {
		wishes, err := d.wishes.TopWishes(ctx, d.guildID, kind, digestPerKind)
		if err != nil {
			return "", 0, fmt.Errorf("list %s wishes: %w", kind, err)
		}
		if len(wishes) == 0 {
			continue
		}
		total += len(wishes)
		lines = append(lines, d.localizer.Default(i18n.MsgDigestKind, map[string]interface{}{"Kind": string(kind)}))
		for _, w := range wishes {
			lines = append(lines, d.localizer.Default(i18n.MsgWishesEntry, map[string]interface{}{
				"ID":      w.ID,
				"Votes":   w.Votes,
				"Granted": w.Granted,
				"Text":    clip(w.Description, 80),
			}))
		}
	}
	return strings.Join(lines, "\n"), total, nil
}

func clip(text string, n int) string {
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
