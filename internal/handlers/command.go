package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/middleware"
	"github.com/dreambot-go/internal/services/conversation"
	"github.com/dreambot-go/internal/services/responses"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/dreambot-go/pkg/keylock"
	"github.com/dreambot-go/pkg/zalgo"
	"github.com/sirupsen/logrus"
)

const statsLimit = 5

// CommandHandler handles prefix commands
type CommandHandler struct {
	config      *config.Config
	session     Session
	engine      *conversation.Engine
	usage       UsageReporter
	community   storage.CommunityStore
	rateLimiter middleware.RateLimiter
	localizer   *i18n.Localizer
	styler      *zalgo.Styler
	security    *middleware.SecurityMiddleware
	metrics     *middleware.Metrics
	logger      *logrus.Logger

	// threshold is the vote count a channel wish needs; moderators may change it.
	threshold atomic.Int64
	wishLocks *keylock.Striped
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	session Session,
	engine *conversation.Engine,
	usage UsageReporter,
	community storage.CommunityStore,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	styler *zalgo.Styler,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *CommandHandler {
	h := &CommandHandler{
		config:      cfg,
		session:     session,
		engine:      engine,
		usage:       usage,
		community:   community,
		rateLimiter: rateLimiter,
		localizer:   localizer,
		styler:      styler,
		security:    middleware.NewSecurityMiddleware(logger),
		metrics:     metrics,
		logger:      logger,
		wishLocks:   keylock.New(0),
	}
	h.threshold.Store(int64(cfg.Community.VoteThreshold))
	return h
}

// IsCommand reports whether content starts with the command prefix.
func (h *CommandHandler) IsCommand(content string) bool {
	prefix := h.config.Discord.CommandPrefix
	return prefix != "" && strings.HasPrefix(content, prefix) && len(strings.TrimSpace(content)) > len(prefix)
}

func (h *CommandHandler) parse(content string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(content, h.config.Discord.CommandPrefix))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (h *CommandHandler) msg(id string, data map[string]interface{}) string {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["Prefix"] = h.config.Discord.CommandPrefix
	return h.localizer.Default(id, data)
}

// HandleCommand processes prefix commands
func (h *CommandHandler) HandleCommand(ctx context.Context, m *discordgo.Message) error {
	command, args := h.parse(m.Content)
	if command == "" {
		return nil
	}

	if !h.rateLimiter.Allow(m.Author.ID) {
		return h.reply(m, h.msg(i18n.MsgRateLimitExceeded, nil))
	}

	h.logger.WithFields(logrus.Fields{
		"command": command,
		"user_id": m.Author.ID,
	}).Debug("Handling command")

	switch command {
	case "help":
		h.metrics.RecordCommandExecuted(command)
		return h.reply(m, h.msg(i18n.MsgHelp, nil))
	case "ping":
		h.metrics.RecordCommandExecuted(command)
		return h.handlePing(m)
	case "whisper":
		h.metrics.RecordCommandExecuted(command)
		return h.handleWhisper(ctx, m)
	case "stats":
		h.metrics.RecordCommandExecuted(command)
		return h.handleStats(ctx, m, args)
	case "context":
		h.metrics.RecordCommandExecuted(command)
		return h.handleContext(m)
	case "escape":
		h.metrics.RecordCommandExecuted(command)
		return h.handleEscape(m)
	case "unescape":
		h.metrics.RecordCommandExecuted(command)
		return h.handleUnescape(m)
	case "kick", "ban", "unban", "timeout", "warn", "warnings", "clearwarnings", "purge":
		h.metrics.RecordCommandExecuted(command)
		return h.handleModeration(ctx, m, command, args)
	case "wish", "vote", "unvote", "topwishes", "topvideos", "topother", "removewish", "setthreshold":
		h.metrics.RecordCommandExecuted(command)
		return h.handleWishes(ctx, m, command, args)
	default:
		h.metrics.RecordCommandExecuted("unknown")
		return h.reply(m, h.msg(i18n.MsgUnknownCommand, nil))
	}
}

func (h *CommandHandler) reply(m *discordgo.Message, text string) error {
	text = h.security.SanitizeOutput(text)
	if _, err := h.session.ChannelMessageSendReply(m.ChannelID, text, m.Reference()); err != nil {
		h.logger.WithError(err).WithField("channel_id", m.ChannelID).Error("Failed to send command reply")
		return err
	}
	return nil
}

func (h *CommandHandler) handlePing(m *discordgo.Message) error {
	latency := h.session.HeartbeatLatency().Round(time.Millisecond)
	return h.reply(m, h.msg(i18n.MsgPong, map[string]interface{}{"Latency": latency.String()}))
}

func (h *CommandHandler) handleWhisper(ctx context.Context, m *discordgo.Message) error {
	sel, ok := h.engine.SelectFrom(ctx, responses.PoolWhispers, "")
	if !ok {
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	level := h.styler.Pick(zalgo.Medium, zalgo.High, zalgo.Extreme)
	text := h.styler.Style(sel.Text, level, middleware.MaxMessageRunes)
	return h.reply(m, text)
}

func (h *CommandHandler) handleStats(ctx context.Context, m *discordgo.Message, args []string) error {
	pool := responses.PoolEightBall
	if len(args) > 0 {
		pool = strings.ToLower(args[0])
	}

	if _, ok := h.engine.Catalog().Pool(pool); !ok {
		return h.reply(m, h.msg(i18n.MsgStatsUnknownPool, map[string]interface{}{
			"Pool":  pool,
			"Pools": strings.Join(h.engine.Catalog().Names(), ", "),
		}))
	}

	entries, err := h.usage.TopUsage(ctx, pool, statsLimit)
	if err != nil {
		h.logger.WithError(err).WithField("pool", pool).Error("Failed to load usage stats")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	if len(entries) == 0 {
		return h.reply(m, h.msg(i18n.MsgStatsEmpty, map[string]interface{}{"Pool": pool}))
	}

	lines := []string{h.msg(i18n.MsgStatsHeader, map[string]interface{}{"Pool": pool})}
	for _, e := range entries {
		lines = append(lines, h.msg(i18n.MsgStatsEntry, map[string]interface{}{
			"ID":    e.ResponseID,
			"Count": e.UsageCount,
			"Text":  truncate(e.Text, 60),
		}))
	}
	return h.reply(m, strings.Join(lines, "\n"))
}

func (h *CommandHandler) handleContext(m *discordgo.Message) error {
	history := h.engine.Contexts().HistorySummary(m.Author.ID)
	if len(history) == 0 {
		return h.reply(m, h.msg(i18n.MsgContextEmpty, nil))
	}

	lines := []string{h.msg(i18n.MsgContextHeader, map[string]interface{}{"Count": len(history)})}
	for i, entry := range history {
		label := entry.Intent
		if label == "" {
			label = "-"
		}
		lines = append(lines, h.msg(i18n.MsgContextEntry, map[string]interface{}{
			"Index":  i + 1,
			"Intent": label,
			"Topic":  entry.Topic,
		}))
	}
	return h.reply(m, strings.Join(lines, "\n"))
}

func (h *CommandHandler) handleEscape(m *discordgo.Message) error {
	remaining := h.engine.Contexts().EscapeRemaining(m.Author.ID)
	if remaining <= 0 {
		return h.reply(m, h.msg(i18n.MsgEscapeNone, nil))
	}
	return h.reply(m, h.msg(i18n.MsgEscapeActive, map[string]interface{}{
		"Remaining": remaining.Round(time.Second).String(),
	}))
}

func (h *CommandHandler) handleUnescape(m *discordgo.Message) error {
	if !h.isModerator(m.Member) {
		return h.reply(m, h.msg(i18n.MsgNotModerator, nil))
	}

	target := mentionedUser(m)
	if target == nil {
		return h.reply(m, h.msg(i18n.MsgUnescapeUsage, nil))
	}

	data := map[string]interface{}{"User": target.Mention()}
	if h.engine.Contexts().ClearEscape(target.ID) {
		h.logger.WithFields(logrus.Fields{
			"moderator_id": m.Author.ID,
			"user_id":      target.ID,
		}).Info("Escape cleared by moderator")
		return h.reply(m, h.msg(i18n.MsgUnescapeDone, data))
	}
	return h.reply(m, h.msg(i18n.MsgUnescapeNotEscaped, data))
}

func (h *CommandHandler) isModerator(member *discordgo.Member) bool {
	return hasAnyRole(member, h.config.Discord.ModeratorRoles)
}

func hasAnyRole(member *discordgo.Member, roles []string) bool {
	if member == nil {
		return false
	}
	for _, have := range member.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// mentionedUser returns the first mentioned user that is not a bot.
func mentionedUser(m *discordgo.Message) *discordgo.User {
	for _, u := range m.Mentions {
		if u != nil && !u.Bot {
			return u
		}
	}
	return nil
}

func truncate(text string, max int) string {
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(runes) <= max {
		return string(runes)
	}
	return fmt.Sprintf("%s...", string(runes[:max]))
}
