package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

const (
	wishListDefault = 10
	wishListMax     = 25
	channelNameMax  = 100
)

func (h *CommandHandler) handleWishes(ctx context.Context, m *discordgo.Message, command string, args []string) error {
	if m.GuildID == "" {
		return h.reply(m, h.msg(i18n.MsgGuildOnly, nil))
	}

	switch command {
	case "wish":
		return h.handleWish(ctx, m, args)
	case "vote":
		return h.handleVote(ctx, m, command, args, true)
	case "unvote":
		return h.handleVote(ctx, m, command, args, false)
	case "topwishes":
		var kind models.WishKind
		if len(args) > 0 {
			if k, ok := models.ParseWishKind(args[0]); ok {
				kind, args = k, args[1:]
			}
		}
		return h.handleTopWishes(ctx, m, kind, args)
	case "topvideos":
		return h.handleTopWishes(ctx, m, models.WishVideo, args)
	case "topother":
		return h.handleTopWishes(ctx, m, models.WishOther, args)
	case "removewish":
		return h.handleRemoveWish(ctx, m, command, args)
	default:
		return h.handleSetThreshold(m, args)
	}
}

func (h *CommandHandler) canWish(member *discordgo.Member) bool {
	roles := h.config.Community.WishRoles
	return len(roles) == 0 || hasAnyRole(member, roles) || h.isModerator(member)
}

func (h *CommandHandler) handleWish(ctx context.Context, m *discordgo.Message, args []string) error {
	if !h.canWish(m.Member) {
		return h.reply(m, h.msg(i18n.MsgWishNotDreamer, nil))
	}
	if len(args) < 2 {
		return h.reply(m, h.msg(i18n.MsgWishUsage, nil))
	}
	kind, ok := models.ParseWishKind(args[0])
	if !ok {
		return h.reply(m, h.msg(i18n.MsgWishUsage, nil))
	}

	wish := models.Wish{
		GuildID:     m.GuildID,
		AuthorID:    m.Author.ID,
		Kind:        kind,
		Description: strings.Join(args[1:], " "),
		CreatedAt:   time.Now().UTC(),
	}
	if kind == models.WishChannel {
		name, desc, found := strings.Cut(wish.Description, ":")
		wish.Title = channelName(name)
		wish.Description = strings.TrimSpace(desc)
		if !found || wish.Title == "" || wish.Description == "" {
			return h.reply(m, h.msg(i18n.MsgWishChannelName, nil))
		}
	}

	wish, err := h.community.AddWish(ctx, wish)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", m.Author.ID).Error("Failed to store wish")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	h.logger.WithFields(logrus.Fields{
		"wish_id":  wish.ID,
		"kind":     wish.Kind,
		"guild_id": wish.GuildID,
		"user_id":  wish.AuthorID,
	}).Info("Wish made")
	return h.reply(m, h.msg(i18n.MsgWishMade, map[string]interface{}{
		"ID":   wish.ID,
		"Kind": string(wish.Kind),
	}))
}

// wishID parses the wish number argument, replying with usage when it is missing.
func (h *CommandHandler) wishID(m *discordgo.Message, command string, args []string) (int64, bool, error) {
	if len(args) > 0 {
		if id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64); err == nil && id > 0 {
			return id, true, nil
		}
	}
	return 0, false, h.reply(m, h.msg(i18n.MsgWishIDUsage, map[string]interface{}{"Command": command}))
}

func (h *CommandHandler) wishFailed(m *discordgo.Message, id int64, err error) error {
	if errors.Is(err, storage.ErrWishNotFound) {
		return h.reply(m, h.msg(i18n.MsgWishNotFound, map[string]interface{}{"ID": id}))
	}
	h.logger.WithError(err).WithField("wish_id", id).Error("Wish store failed")
	return h.reply(m, h.msg(i18n.MsgError, nil))
}

// handleVote adds or withdraws a vote. Votes on one wish are serialized so a
// channel wish crossing the threshold is granted once.
func (h *CommandHandler) handleVote(ctx context.Context, m *discordgo.Message, command string, args []string, up bool) error {
	id, ok, err := h.wishID(m, command, args)
	if !ok {
		return err
	}

	unlock := h.wishLocks.Lock(m.GuildID + "/" + strconv.FormatInt(id, 10))
	defer unlock()

	wish, changed, err := h.community.Vote(ctx, m.GuildID, id, m.Author.ID, up)
	if err != nil {
		return h.wishFailed(m, id, err)
	}

	data := map[string]interface{}{"ID": id, "Votes": wish.Votes}
	switch {
	case up && !changed:
		return h.reply(m, h.msg(i18n.MsgVoteAlready, data))
	case !up && !changed:
		return h.reply(m, h.msg(i18n.MsgUnvoteNone, data))
	case !up:
		return h.reply(m, h.msg(i18n.MsgUnvoteDone, data))
	}

	if err := h.reply(m, h.msg(i18n.MsgVoteDone, data)); err != nil {
		return err
	}
	return h.grantIfDue(ctx, m, wish)
}

// grantIfDue creates the channel of a channel wish whose votes reached the threshold.
func (h *CommandHandler) grantIfDue(ctx context.Context, m *discordgo.Message, wish models.Wish) error {
	if wish.Kind != models.WishChannel || wish.Granted || int64(wish.Votes) < h.threshold.Load() {
		return nil
	}

	channel, err := h.session.GuildChannelCreateComplex(wish.GuildID, discordgo.GuildChannelCreateData{
		Name:     wish.Title,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    truncate(wish.Description, 1000),
		ParentID: h.config.Community.WishCategory,
	})
	if err != nil {
		h.logger.WithError(err).WithField("wish_id", wish.ID).Warn("Failed to create wished channel")
		return nil
	}
	if err := h.community.GrantWish(ctx, wish.GuildID, wish.ID); err != nil {
		h.logger.WithError(err).WithField("wish_id", wish.ID).Error("Failed to mark wish granted")
	}

	h.logger.WithFields(logrus.Fields{
		"wish_id":    wish.ID,
		"channel_id": channel.ID,
		"votes":      wish.Votes,
	}).Info("Channel wish granted")
	return h.reply(m, h.msg(i18n.MsgWishGranted, map[string]interface{}{
		"ID":      wish.ID,
		"Channel": channel.Mention(),
	}))
}

func (h *CommandHandler) handleTopWishes(ctx context.Context, m *discordgo.Message, kind models.WishKind, args []string) error {
	limit := wishListDefault
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > wishListMax {
		limit = wishListMax
	}

	wishes, err := h.community.TopWishes(ctx, m.GuildID, kind, limit)
	if err != nil {
		h.logger.WithError(err).WithField("guild_id", m.GuildID).Error("Failed to list wishes")
		return h.reply(m, h.msg(i18n.MsgError, nil))
	}
	if len(wishes) == 0 {
		return h.reply(m, h.msg(i18n.MsgWishesEmpty, nil))
	}

	lines := []string{h.msg(i18n.MsgWishesHeader, map[string]interface{}{"Kind": string(kind)})}
	for _, w := range wishes {
		lines = append(lines, h.msg(i18n.MsgWishesEntry, map[string]interface{}{
			"ID":      w.ID,
			"Votes":   w.Votes,
			"Granted": w.Granted,
			"Text":    truncate(wishText(w), 80),
		}))
	}
	return h.reply(m, strings.Join(lines, "\n"))
}

func (h *CommandHandler) handleRemoveWish(ctx context.Context, m *discordgo.Message, command string, args []string) error {
	id, ok, err := h.wishID(m, command, args)
	if !ok {
		return err
	}

	wish, err := h.community.Wish(ctx, m.GuildID, id)
	if err != nil {
		return h.wishFailed(m, id, err)
	}
	if wish.AuthorID != m.Author.ID && !h.isModerator(m.Member) {
		return h.reply(m, h.msg(i18n.MsgNotModerator, nil))
	}
	if err := h.community.RemoveWish(ctx, m.GuildID, id); err != nil {
		return h.wishFailed(m, id, err)
	}

	h.logger.WithFields(logrus.Fields{
		"wish_id": id,
		"user_id": m.Author.ID,
	}).Info("Wish removed")
	return h.reply(m, h.msg(i18n.MsgWishRemoved, map[string]interface{}{"ID": id}))
}

func (h *CommandHandler) handleSetThreshold(m *discordgo.Message, args []string) error {
	if !h.isModerator(m.Member) {
		return h.reply(m, h.msg(i18n.MsgNotModerator, nil))
	}
	n := 0
	if len(args) > 0 {
		n, _ = strconv.Atoi(args[0])
	}
	if n <= 0 {
		return h.reply(m, h.msg(i18n.MsgThresholdUsage, map[string]interface{}{"Threshold": h.threshold.Load()}))
	}

	h.threshold.Store(int64(n))
	h.logger.WithFields(logrus.Fields{
		"threshold":    n,
		"moderator_id": m.Author.ID,
	}).Info("Wish vote threshold changed")
	return h.reply(m, h.msg(i18n.MsgThresholdSet, map[string]interface{}{"Threshold": n}))
}

func wishText(w models.Wish) string {
	if w.Title != "" {
		return "#" + w.Title + ": " + w.Description
	}
	return w.Description
}

// channelName turns free text into a Discord text channel name.
func channelName(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r):
			if b.Len() > 0 && !dash {
				b.WriteRune('-')
				dash = true
			}
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if runes := []rune(name); len(runes) > channelNameMax {
		name = strings.TrimRight(string(runes[:channelNameMax]), "-")
	}
	return name
}
