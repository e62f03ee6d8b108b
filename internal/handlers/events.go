package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/middleware"
	"github.com/sirupsen/logrus"
)

const handleTimeout = 30 * time.Second

// Router dispatches gateway events to the command and mention handlers.
type Router struct {
	commands *CommandHandler
	mentions *MessageHandler
	metrics  *middleware.Metrics
	logger   *logrus.Logger

	mu        sync.RWMutex
	botUserID string
}

// NewRouter creates a new event router
func NewRouter(commands *CommandHandler, mentions *MessageHandler, metrics *middleware.Metrics, logger *logrus.Logger) *Router {
	return &Router{
		commands: commands,
		mentions: mentions,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetBotUserID records the bot's own user ID.
func (r *Router) SetBotUserID(id string) {
	r.mu.Lock()
	r.botUserID = id
	r.mu.Unlock()
}

// BotUserID returns the bot's own user ID once known.
func (r *Router) BotUserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.botUserID
}

// OnReady handles the gateway ready event.
func (r *Router) OnReady(_ *discordgo.Session, ready *discordgo.Ready) {
	if ready.User == nil {
		return
	}
	r.SetBotUserID(ready.User.ID)
	r.logger.WithFields(logrus.Fields{
		"user":   ready.User.Username,
		"guilds": len(ready.Guilds),
	}).Info("Connected to Discord")
}

// OnMessageCreate handles the message create event.
func (r *Router) OnMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	r.Dispatch(ctx, m.Message)
}

// Dispatch routes a single message. Bot messages and the bot's own are ignored.
func (r *Router) Dispatch(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	botID := r.BotUserID()
	if m.Author.ID == botID {
		return
	}

	kind := "guild"
	if m.GuildID == "" {
		kind = "dm"
	}
	r.metrics.RecordMessageReceived(kind)

	if r.commands.IsCommand(m.Content) {
		if err := r.commands.HandleCommand(ctx, m); err != nil {
			r.logger.WithError(err).WithField("channel_id", m.ChannelID).Error("Command handling failed")
		}
		return
	}

	if !mentions(m, botID) {
		return
	}
	if err := r.mentions.HandleMention(ctx, m); err != nil {
		r.logger.WithError(err).WithField("channel_id", m.ChannelID).Error("Mention handling failed")
	}
}

func mentions(m *discordgo.Message, botID string) bool {
	if botID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return false
}
