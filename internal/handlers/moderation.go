package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// bulkDeleteMaxAge is how old a message may be and still be bulk deleted.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

func (h *CommandHandler) handleModeration(ctx context.Context, m *discordgo.Message, command string, args []string) error {
	if !h.isModerator(m.Member) {
		return h.reply(m, h.msg(i18n.MsgNotModerator, nil))
	}
	if m.GuildID == "" {
		return h.reply(m, h.msg(i18n.MsgGuildOnly, nil))
	}

	switch command {
	case "kick":
		return h.handleKick(m, args)
	case "ban":
		return h.handleBan(m, args)
	case "unban":
		return h.handleUnban(m, args)
	case "timeout":
		return h.handleTimeout(m, args)
	case "warn":
		return h.handleWarn(ctx, m, args)
	case "warnings":
		return h.handleWarnings(ctx, m)
	case "clearwarnings":
		return h.handleClearWarnings(ctx, m)
	default:
		return h.handlePurge(m, args)
	}
}

func (h *CommandHandler) usageReply(m *discordgo.Message, usage string) error {
	return h.reply(m, h.msg(i18n.MsgModUsage, map[string]interface{}{"Usage": usage}))
}

// moderationTarget resolves the mentioned member, replying when there is none
// or when the moderator named themselves.
func (h *CommandHandler) moderationTarget(m *discordgo.Message, usage string) (*discordgo.User, error) {
	target := mentionedUser(m)
	if target == nil {
		return nil, h.usageReply(m, usage)
	}
	if target.ID == m.Author.ID {
		return nil, h.reply(m, h.msg(i18n.MsgModSelf, nil))
	}
	return target, nil
}

func (h *CommandHandler) actionFailed(m *discordgo.Message, action string, err error) error {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"action":   action,
		"guild_id": m.GuildID,
	}).Warn("Moderation action failed")
	if isForbidden(err) {
		return h.reply(m, h.msg(i18n.MsgModForbidden, nil))
	}
	return h.reply(m, h.msg(i18n.MsgError, nil))
}

// logModeration records an action and copies it to the mod log channel when one is set.
func (h *CommandHandler) logModeration(m *discordgo.Message, action, target, reason, duration string) {
	h.logger.WithFields(logrus.Fields{
		"action":       action,
		"guild_id":     m.GuildID,
		"moderator_id": m.Author.ID,
		"target":       target,
		"reason":       reason,
		"duration":     duration,
	}).Info("Moderation action")

	channel := h.config.Community.ModLogChannel
	if channel == "" {
		return
	}
	if reason == "" {
		reason = h.msg(i18n.MsgNoReason, nil)
	}
	text := h.msg(i18n.MsgModLog, map[string]interface{}{
		"Action":    action,
		"Moderator": m.Author.ID,
		"Target":    target,
		"Reason":    reason,
		"Duration":  duration,
	})
	if _, err := h.session.ChannelMessageSend(channel, h.security.SanitizeOutput(text)); err != nil {
		h.logger.WithError(err).WithField("channel_id", channel).Warn("Failed to write mod log")
	}
}

func (h *CommandHandler) handleKick(m *discordgo.Message, args []string) error {
	target, err := h.moderationTarget(m, "kick @user [reason]")
	if target == nil {
		return err
	}
	reason := reasonFrom(args)
	if err := h.session.GuildMemberDeleteWithReason(m.GuildID, target.ID, reason); err != nil {
		return h.actionFailed(m, "kick", err)
	}
	h.logModeration(m, "KICK", target.Mention(), reason, "")
	return h.reply(m, h.msg(i18n.MsgKickDone, map[string]interface{}{"User": target.Mention()}))
}

func (h *CommandHandler) handleBan(m *discordgo.Message, args []string) error {
	target, err := h.moderationTarget(m, "ban @user [reason]")
	if target == nil {
		return err
	}
	reason := reasonFrom(args)
	if err := h.session.GuildBanCreateWithReason(m.GuildID, target.ID, reason, 0); err != nil {
		return h.actionFailed(m, "ban", err)
	}
	h.logModeration(m, "BAN", target.Mention(), reason, "")
	return h.reply(m, h.msg(i18n.MsgBanDone, map[string]interface{}{"User": target.Mention()}))
}

func (h *CommandHandler) handleUnban(m *discordgo.Message, args []string) error {
	if len(args) == 0 || !isSnowflake(args[0]) {
		return h.usageReply(m, "unban <user id>")
	}
	userID := args[0]
	if err := h.session.GuildBanDelete(m.GuildID, userID); err != nil {
		if restCode(err) == discordgo.ErrCodeUnknownBan || restCode(err) == discordgo.ErrCodeUnknownUser {
			return h.reply(m, h.msg(i18n.MsgUnbanNotFound, nil))
		}
		return h.actionFailed(m, "unban", err)
	}
	h.logModeration(m, "UNBAN", "<@"+userID+">", "", "")
	return h.reply(m, h.msg(i18n.MsgUnbanDone, map[string]interface{}{"UserID": userID}))
}

func (h *CommandHandler) handleTimeout(m *discordgo.Message, args []string) error {
	target, err := h.moderationTarget(m, "timeout @user <duration> [reason]")
	if target == nil {
		return err
	}
	rest := stripMentions(args)
	if len(rest) == 0 {
		return h.usageReply(m, "timeout @user <duration> [reason]")
	}
	d, ok := parseTimeout(rest[0])
	if !ok {
		return h.reply(m, h.msg(i18n.MsgTimeoutInvalid, nil))
	}
	reason := strings.Join(rest[1:], " ")

	until := time.Now().Add(d)
	if err := h.session.GuildMemberTimeout(m.GuildID, target.ID, &until); err != nil {
		return h.actionFailed(m, "timeout", err)
	}
	h.logModeration(m, "TIMEOUT", target.Mention(), reason, rest[0])
	return h.reply(m, h.msg(i18n.MsgTimeoutDone, map[string]interface{}{
		"User":     target.Mention(),
		"Duration": rest[0],
	}))
}

func (h *CommandHandler) handleWarn(ctx context.Context, m *discordgo.Message, args []string) error {
	target, err := h.moderationTarget(m, "warn @user [reason]")
	if target == nil {
		return err
	}
	reason := reasonFrom(args)

	count, err := h.community.AddWarning(ctx, models.Warning{
		GuildID:     m.GuildID,
		UserID:      target.ID,
		ModeratorID: m.Author.ID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		h.logger.WithError(err).WithField("user_id", target.ID).Error("Failed to store warning")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}

	h.logModeration(m, "WARNING #"+strconv.Itoa(count), target.Mention(), reason, "")
	if err := h.reply(m, h.msg(i18n.MsgWarnDone, map[string]interface{}{
		"User":  target.Mention(),
		"Count": count,
	})); err != nil {
		return err
	}

	limit := h.config.Community.AutoTimeoutWarnings
	if limit <= 0 || count < limit {
		return nil
	}
	d := h.config.Community.AutoTimeoutDuration
	until := time.Now().Add(d)
	if err := h.session.GuildMemberTimeout(m.GuildID, target.ID, &until); err != nil {
		return h.actionFailed(m, "auto_timeout", err)
	}
	h.logModeration(m, "AUTO TIMEOUT", target.Mention(), strconv.Itoa(count)+" warnings", d.String())
	return h.reply(m, h.msg(i18n.MsgWarnAutoTimeout, map[string]interface{}{
		"User":     target.Mention(),
		"Count":    count,
		"Duration": d.String(),
	}))
}

func (h *CommandHandler) handleWarnings(ctx context.Context, m *discordgo.Message) error {
	target := mentionedUser(m)
	if target == nil {
		return h.usageReply(m, "warnings @user")
	}

	warnings, err := h.community.Warnings(ctx, m.GuildID, target.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", target.ID).Error("Failed to load warnings")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	if len(warnings) == 0 {
		return h.reply(m, h.msg(i18n.MsgWarningsNone, map[string]interface{}{"User": target.Mention()}))
	}

	lines := []string{h.msg(i18n.MsgWarningsHeader, map[string]interface{}{
		"User":  target.Mention(),
		"Count": len(warnings),
	})}
	for i, w := range warnings {
		reason := w.Reason
		if reason == "" {
			reason = h.msg(i18n.MsgNoReason, nil)
		}
		lines = append(lines, h.msg(i18n.MsgWarningsEntry, map[string]interface{}{
			"Index":     i + 1,
			"Time":      w.CreatedAt.Format("2006-01-02 15:04"),
			"Moderator": w.ModeratorID,
			"Reason":    truncate(reason, 120),
		}))
	}
	return h.reply(m, strings.Join(lines, "\n"))
}

func (h *CommandHandler) handleClearWarnings(ctx context.Context, m *discordgo.Message) error {
	target := mentionedUser(m)
	if target == nil {
		return h.usageReply(m, "clearwarnings @user")
	}

	n, err := h.community.ClearWarnings(ctx, m.GuildID, target.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", target.ID).Error("Failed to clear warnings")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	data := map[string]interface{}{"User": target.Mention()}
	if n == 0 {
		return h.reply(m, h.msg(i18n.MsgWarningsClearNone, data))
	}
	h.logModeration(m, "WARNINGS CLEARED", target.Mention(), "", "")
	return h.reply(m, h.msg(i18n.MsgWarningsCleared, data))
}

// handlePurge deletes the command and up to count messages before it. The
// confirmation is sent plainly because the command it would reply to is gone.
func (h *CommandHandler) handlePurge(m *discordgo.Message, args []string) error {
	limit := h.config.Community.PurgeMax
	if len(args) == 0 {
		return h.usageReply(m, "purge <count>")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return h.usageReply(m, "purge <count>")
	}
	if count > limit {
		return h.reply(m, h.msg(i18n.MsgPurgeTooMany, map[string]interface{}{"Max": limit}))
	}
	// One slot of the bulk delete goes to the command itself.
	if count > 99 {
		count = 99
	}

	history, err := h.session.ChannelMessages(m.ChannelID, count, m.ID, "", "")
	if err != nil {
		return h.actionFailed(m, "purge", err)
	}
	ids := []string{m.ID}
	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	for _, msg := range history {
		if msg.Timestamp.After(cutoff) {
			ids = append(ids, msg.ID)
		}
	}
	if err := h.session.ChannelMessagesBulkDelete(m.ChannelID, ids); err != nil {
		return h.actionFailed(m, "purge", err)
	}

	deleted := len(ids) - 1
	h.logModeration(m, "PURGE", "<#"+m.ChannelID+">", strconv.Itoa(deleted)+" messages", "")
	text := h.security.SanitizeOutput(h.msg(i18n.MsgPurgeDone, map[string]interface{}{"Count": deleted}))
	if _, err := h.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		h.logger.WithError(err).WithField("channel_id", m.ChannelID).Error("Failed to send purge confirmation")
		return err
	}
	return nil
}

// parseTimeout reads durations such as 10s, 5m, 2h or 1d.
func parseTimeout(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	units := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
	}
	unit, ok := units[s[len(s)-1]]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	d := time.Duration(n) * unit
	if d > config.MaxTimeout {
		return 0, false
	}
	return d, true
}

func isMentionToken(s string) bool {
	return strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">")
}

func stripMentions(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if !isMentionToken(a) {
			out = append(out, a)
		}
	}
	return out
}

func reasonFrom(args []string) string {
	return strings.Join(stripMentions(args), " ")
}

func isSnowflake(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func restCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

func isForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return true
	}
	return restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeMissingPermissions
}
