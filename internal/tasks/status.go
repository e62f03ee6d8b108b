package tasks

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/middleware"
	"github.com/sirupsen/logrus"
)

const bearerSuffix = ", o bearer mine"

var activityTypes = []discordgo.ActivityType{
	discordgo.ActivityTypeGame,
	discordgo.ActivityTypeWatching,
	discordgo.ActivityTypeListening,
}

// StatusUpdater sets the bot's presence.
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// StatusRotator periodically swaps the bot's activity for a random one.
type StatusRotator struct {
	updater      StatusUpdater
	activities   []string
	interval     time.Duration
	suffixChance float64
	rng          *rand.Rand
	metrics      *middleware.Metrics
	logger       *logrus.Logger
}

// NewStatusRotator creates a status task. A nil rng is seeded from the clock.
func NewStatusRotator(
	cfg *config.PersonaConfig,
	updater StatusUpdater,
	activities []string,
	rng *rand.Rand,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *StatusRotator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &StatusRotator{
		updater:      updater,
		activities:   activities,
		interval:     cfg.StatusInterval,
		suffixChance: cfg.BearerSuffixChance,
		rng:          rng,
		metrics:      metrics,
		logger:       logger,
	}
}

// Next picks the next activity.
func (r *StatusRotator) Next() (*discordgo.Activity, error) {
	if len(r.activities) == 0 {
		return nil, errors.New("no activities to rotate through")
	}
	name := r.activities[r.rng.Intn(len(r.activities))]
	if r.rng.Float64() < r.suffixChance {
		name += bearerSuffix
	}
	return &discordgo.Activity{
		Name: name,
		Type: activityTypes[r.rng.Intn(len(activityTypes))],
	}, nil
}

// Rotate applies a new random activity.
func (r *StatusRotator) Rotate() error {
	activity, err := r.Next()
	if err != nil {
		return err
	}
	err = r.updater.UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{activity},
		Status:     string(discordgo.StatusOnline),
	})
	if err != nil {
		return err
	}

	r.metrics.RecordStatusRotation()
	r.logger.WithFields(logrus.Fields{
		"activity": activity.Name,
		"type":     activity.Type,
	}).Debug("Status rotated")
	return nil
}

// Run rotates immediately and then once per interval until ctx is done.
func (r *StatusRotator) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.WithField("interval", r.interval).Warn("Status rotation disabled: invalid interval")
		return nil
	}
	if err := r.Rotate(); err != nil {
		r.logger.WithError(err).Error("Failed to rotate status")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Rotate(); err != nil {
				r.logger.WithError(err).Error("Failed to rotate status")
			}
		}
	}
}
