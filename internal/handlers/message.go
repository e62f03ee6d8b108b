package handlers

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/middleware"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/pkg/logger"
	"github.com/dreambot-go/pkg/markdown"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var mentionToken = regexp.MustCompile(`<@!?\d+>`)

// MessageHandler answers mentions through the conversation engine
type MessageHandler struct {
	config    *config.Config
	session   Session
	engine    *conversation.Engine
	security  *middleware.SecurityMiddleware
	styler    *zalgo.Styler
	intensity zalgo.Intensity
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	session Session,
	engine *conversation.Engine,
	styler *zalgo.Styler,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:    cfg,
		session:   session,
		engine:    engine,
		security:  middleware.NewSecurityMiddleware(logger),
		styler:    styler,
		intensity: zalgo.ParseIntensity(cfg.Persona.ReplyIntensity),
		metrics:   metrics,
		logger:    logger,
	}
}

// CleanMention strips user mention tokens and markdown from a message.
func CleanMention(content string) string {
	text := mentionToken.ReplaceAllString(content, " ")
	text = strings.Join(strings.Fields(text), " ")
	return markdown.ToPlainText(text)
}

// HandleMention processes a message that mentions the bot
func (h *MessageHandler) HandleMention(ctx context.Context, m *discordgo.Message) error {
	exchangeID := ulid.Make().String()
	log := logger.WithUser(h.logger, m.Author.ID, m.ChannelID).WithField("exchange_id", exchangeID)

	if err := h.security.ValidateInput(m.Content); err != nil {
		log.WithError(err).Warn("Input validation failed")
		h.metrics.RecordMentionProcessed("rejected")
		return nil
	}

	timestamp := m.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	reply := h.engine.Respond(ctx, models.InboundMessage{
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		Text:      CleanMention(m.Content),
		Timestamp: timestamp,
	})

	if reply.Silent {
		log.Debug("Author is escaped, staying silent")
		h.metrics.RecordMentionProcessed("silenced")
		return nil
	}

	text := h.styler.Style(reply.Text, h.intensity, middleware.MaxMessageRunes)
	text = h.security.SanitizeOutput(text)

	if _, err := h.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		log.WithError(err).Error("Failed to send reply")
		h.metrics.RecordMentionProcessed("error")
		return err
	}

	log.WithFields(logrus.Fields{
		"intent":   reply.Intent.String(),
		"pool":     reply.Pool,
		"override": reply.Override,
		"lore":     reply.LoreCallback,
		"escape":   reply.EscapeTriggered,
	}).Info("Replied to mention")
	h.metrics.RecordMentionProcessed("success")
	return nil
}
