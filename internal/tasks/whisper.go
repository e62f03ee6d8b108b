package tasks

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/middleware"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/sirupsen/logrus"
)

// ErrNoWhisperChannel is returned when no channel is configured for whispers.
var ErrNoWhisperChannel = errors.New("no whisper channel configured")

// Sender posts a message to a channel.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// PoolPicker draws a response from a named pool.
type PoolPicker interface {
	SelectFrom(ctx context.Context, pool, topic string) (conversation.Selection, bool)
}

// Whisperer posts an unprompted whisper to a fixed channel every interval,
// after a random delay so the timing never looks mechanical.
type Whisperer struct {
	channelID string
	interval  time.Duration
	maxDelay  time.Duration
	sender    Sender
	picker    PoolPicker
	styler    *zalgo.Styler
	rng       *rand.Rand
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewWhisperer creates a whisper task. A nil rng is seeded from the clock.
func NewWhisperer(
	cfg *config.PersonaConfig,
	channelID string,
	sender Sender,
	picker PoolPicker,
	styler *zalgo.Styler,
	rng *rand.Rand,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Whisperer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Whisperer{
		channelID: channelID,
		interval:  cfg.WhisperInterval,
		maxDelay:  cfg.WhisperMaxDelay,
		sender:    sender,
		picker:    picker,
		styler:    styler,
		rng:       rng,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run whispers once per interval until ctx is done.
func (w *Whisperer) Run(ctx context.Context) error {
	if w.channelID == "" {
		w.logger.Warn("Whispers disabled: no channel configured")
		return nil
	}
	if w.interval <= 0 {
		w.logger.WithField("interval", w.interval).Warn("Whispers disabled: invalid interval")
		return nil
	}

	w.logger.WithFields(logrus.Fields{
		"channel_id": w.channelID,
		"interval":   w.interval,
		"max_delay":  w.maxDelay,
	}).Info("Whisper task started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !sleep(ctx, w.delay()) {
				return nil
			}
			if err := w.WhisperOnce(ctx); err != nil {
				w.logger.WithError(err).Error("Failed to whisper")
			}
		}
	}
}

func (w *Whisperer) delay() time.Duration {
	if w.maxDelay <= 0 {
		return 0
	}
	return time.Duration(w.rng.Int63n(int64(w.maxDelay) + 1))
}

// WhisperOnce sends a single whisper at a random intensity.
func (w *Whisperer) WhisperOnce(ctx context.Context) error {
	if w.channelID == "" {
		return ErrNoWhisperChannel
	}

	sel, ok := w.picker.SelectFrom(ctx, responses.PoolWhispers, "")
	if !ok {
		w.metrics.RecordWhisper("error")
		return errors.New("whisper pool is missing")
	}

	level := w.styler.Pick(zalgo.Medium, zalgo.High, zalgo.Extreme)
	text := w.styler.Style(sel.Text, level, middleware.MaxMessageRunes)
	if _, err := w.sender.ChannelMessageSend(w.channelID, text); err != nil {
		w.metrics.RecordWhisper("error")
		return err
	}

	w.metrics.RecordWhisper("success")
	w.logger.WithFields(logrus.Fields{
		"channel_id":  w.channelID,
		"response_id": sel.ID,
		"intensity":   level.String(),
	}).Info("Whisper sent")
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
