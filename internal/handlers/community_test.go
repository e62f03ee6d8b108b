package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/i18n"
	"github.com/dreambot-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var moderator = []string{"mods"}

func newCommunityFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	return newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = false
		if mutate != nil {
			mutate(cfg)
		}
	})
}

func (f *fixture) sendAs(author string, roles []string, content string, mentions ...*discordgo.User) {
	f.router.Dispatch(context.Background(), &discordgo.Message{
		ID:        "cmd",
		ChannelID: "general",
		GuildID:   "guild",
		Content:   content,
		Author:    &discordgo.User{ID: author},
		Member:    &discordgo.Member{Roles: roles},
		Mentions:  mentions,
		Timestamp: time.Now(),
	})
}

func user(id string) *discordgo.User {
	return &discordgo.User{ID: id}
}

func TestModerationRequiresModerator(t *testing.T) {
	f := newCommunityFixture(t, nil)

	for _, cmd := range []string{"!kick <@u2>", "!ban <@u2>", "!warn <@u2>", "!purge 5", "!unban 123"} {
		f.sendAs("u1", []string{"everyone"}, cmd, user("u2"))
		assert.Equal(t, f.text(i18n.MsgNotModerator, nil), f.session.last(t).Content, cmd)
	}
	assert.Empty(t, f.session.actions)
	assert.Empty(t, f.session.deleted)
}

func TestKickAndBan(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.sendAs("mod", moderator, "!kick <@u2> spamming links", user("u2"))
	assert.Equal(t, f.text(i18n.MsgKickDone, map[string]interface{}{"User": "<@u2>"}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!ban <@u3>", user("u3"))
	assert.Equal(t, f.text(i18n.MsgBanDone, map[string]interface{}{"User": "<@u3>"}), f.session.last(t).Content)

	assert.Equal(t, []guildAction{
		{Action: "kick", UserID: "u2", Reason: "spamming links"},
		{Action: "ban", UserID: "u3"},
	}, f.session.actions)

	f.sendAs("mod", moderator, "!kick")
	assert.Equal(t, f.text(i18n.MsgModUsage, map[string]interface{}{"Usage": "kick @user [reason]"}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!ban <@mod>", user("mod"))
	assert.Equal(t, f.text(i18n.MsgModSelf, nil), f.session.last(t).Content)
	assert.Len(t, f.session.actions, 2)
}

func TestModerationFailures(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.session.actionErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	f.sendAs("mod", moderator, "!kick <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgModForbidden, nil), f.session.last(t).Content)

	f.session.actionErr = &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusBadRequest},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions},
	}
	f.sendAs("mod", moderator, "!ban <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgModForbidden, nil), f.session.last(t).Content)

	f.session.actionErr = errors.New("connection reset")
	f.sendAs("mod", moderator, "!kick <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgError, nil), f.session.last(t).Content)
}

func TestUnbanCommand(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.sendAs("mod", moderator, "!unban someone")
	assert.Equal(t, f.text(i18n.MsgModUsage, map[string]interface{}{"Usage": "unban <user id>"}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!unban 123456789")
	assert.Equal(t, f.text(i18n.MsgUnbanDone, map[string]interface{}{"UserID": "123456789"}), f.session.last(t).Content)
	assert.Equal(t, []guildAction{{Action: "unban", UserID: "123456789"}}, f.session.actions)

	f.session.actionErr = &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownBan},
	}
	f.sendAs("mod", moderator, "!unban 42")
	assert.Equal(t, f.text(i18n.MsgUnbanNotFound, nil), f.session.last(t).Content)
}

func TestTimeoutCommand(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.sendAs("mod", moderator, "!timeout <@u2> 10m being loud", user("u2"))
	assert.Equal(t, f.text(i18n.MsgTimeoutDone, map[string]interface{}{"User": "<@u2>", "Duration": "10m"}), f.session.last(t).Content)
	require.Len(t, f.session.actions, 1)
	assert.Equal(t, "u2", f.session.actions[0].UserID)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), f.session.actions[0].Until, 5*time.Second)

	for _, bad := range []string{"10x", "m", "0s", "29d"} {
		f.sendAs("mod", moderator, "!timeout <@u2> "+bad, user("u2"))
		assert.Equal(t, f.text(i18n.MsgTimeoutInvalid, nil), f.session.last(t).Content, bad)
	}

	f.sendAs("mod", moderator, "!timeout <@u2>", user("u2"))
	assert.Contains(t, f.session.last(t).Content, "timeout @user <duration> [reason]")
	assert.Len(t, f.session.actions, 1)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"10s", 10 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"28d", config.MaxTimeout, true},
		{"29d", 0, false},
		{"-5m", 0, false},
		{"1w", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseTimeout(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWarningsLifecycle(t *testing.T) {
	f := newCommunityFixture(t, func(cfg *config.Config) {
		cfg.Community.AutoTimeoutWarnings = 2
		cfg.Community.AutoTimeoutDuration = 12 * time.Hour
	})

	f.sendAs("mod", moderator, "!warnings <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgWarningsNone, map[string]interface{}{"User": "<@u2>"}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!warn <@u2> rude", user("u2"))
	assert.Equal(t, f.text(i18n.MsgWarnDone, map[string]interface{}{"User": "<@u2>", "Count": 1}), f.session.last(t).Content)
	assert.Empty(t, f.session.actions)

	f.sendAs("mod", moderator, "!warn <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgWarnAutoTimeout, map[string]interface{}{
		"User": "<@u2>", "Count": 2, "Duration": "12h0m0s",
	}), f.session.last(t).Content)
	require.Len(t, f.session.actions, 1)
	assert.Equal(t, "timeout", f.session.actions[0].Action)
	assert.WithinDuration(t, time.Now().Add(12*time.Hour), f.session.actions[0].Until, 5*time.Second)

	stored, err := f.community.Warnings(context.Background(), "guild", "u2")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "rude", stored[0].Reason)
	assert.Equal(t, "mod", stored[0].ModeratorID)

	f.sendAs("mod", moderator, "!warnings <@u2>", user("u2"))
	listing := f.session.last(t).Content
	assert.Contains(t, listing, "(2)")
	assert.Contains(t, listing, "- rude")
	assert.Contains(t, listing, "- "+f.text(i18n.MsgNoReason, nil))

	f.sendAs("mod", moderator, "!clearwarnings <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgWarningsCleared, map[string]interface{}{"User": "<@u2>"}), f.session.last(t).Content)
	f.sendAs("mod", moderator, "!clearwarnings <@u2>", user("u2"))
	assert.Equal(t, f.text(i18n.MsgWarningsClearNone, map[string]interface{}{"User": "<@u2>"}), f.session.last(t).Content)
}

func TestModLogChannel(t *testing.T) {
	f := newCommunityFixture(t, func(cfg *config.Config) {
		cfg.Community.ModLogChannel = "modlog"
	})

	f.sendAs("mod", moderator, "!kick <@u2> trolling", user("u2"))

	var logged []sentMessage
	for _, msg := range f.session.messages() {
		if msg.ChannelID == "modlog" {
			logged = append(logged, msg)
		}
	}
	require.Len(t, logged, 1)
	assert.False(t, logged[0].Reply)
	assert.Equal(t, "**KICK** by <@mod> on <@u2>\nReason: trolling", logged[0].Content)
}

func TestPurgeCommand(t *testing.T) {
	f := newCommunityFixture(t, nil)
	now := time.Now()
	f.session.history = []*discordgo.Message{
		{ID: "h1", Timestamp: now.Add(-time.Minute)},
		{ID: "h2", Timestamp: now.Add(-time.Hour)},
		{ID: "old", Timestamp: now.Add(-15 * 24 * time.Hour)},
		{ID: "h3", Timestamp: now.Add(-2 * time.Hour)},
	}

	f.sendAs("mod", moderator, "!purge 3")
	assert.Equal(t, []string{"cmd", "h1", "h2"}, f.session.deleted)
	msg := f.session.last(t)
	assert.False(t, msg.Reply)
	assert.Equal(t, f.text(i18n.MsgPurgeDone, map[string]interface{}{"Count": 2}), msg.Content)

	f.session.deleted = nil
	f.sendAs("mod", moderator, "!purge 10")
	assert.Equal(t, []string{"cmd", "h1", "h2", "h3"}, f.session.deleted)

	f.sendAs("mod", moderator, "!purge 500")
	assert.Equal(t, f.text(i18n.MsgPurgeTooMany, map[string]interface{}{"Max": 100}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!purge lots")
	assert.Equal(t, f.text(i18n.MsgModUsage, map[string]interface{}{"Usage": "purge <count>"}), f.session.last(t).Content)
}

func TestWishVotingGrantsChannel(t *testing.T) {
	f := newCommunityFixture(t, func(cfg *config.Config) {
		cfg.Community.VoteThreshold = 2
		cfg.Community.WishCategory = "community"
	})

	f.sendAs("u1", nil, "!wish channel Art Corner: a place to share drawings")
	assert.Equal(t, f.text(i18n.MsgWishMade, map[string]interface{}{"ID": 1, "Kind": "channel"}), f.session.last(t).Content)

	f.sendAs("u2", nil, "!vote 1")
	assert.Equal(t, f.text(i18n.MsgVoteDone, map[string]interface{}{"ID": 1, "Votes": 1}), f.session.last(t).Content)
	f.sendAs("u2", nil, "!vote #1")
	assert.Equal(t, f.text(i18n.MsgVoteAlready, map[string]interface{}{"ID": 1}), f.session.last(t).Content)
	assert.Empty(t, f.session.created)

	f.sendAs("u3", nil, "!vote 1")
	require.Len(t, f.session.created, 1)
	assert.Equal(t, "art-corner", f.session.created[0].Name)
	assert.Equal(t, "a place to share drawings", f.session.created[0].Topic)
	assert.Equal(t, "community", f.session.created[0].ParentID)
	assert.Equal(t, discordgo.ChannelTypeGuildText, f.session.created[0].Type)
	assert.Equal(t, f.text(i18n.MsgWishGranted, map[string]interface{}{"ID": 1, "Channel": "<#c1>"}), f.session.last(t).Content)

	// A granted wish is never granted twice.
	f.sendAs("u4", nil, "!vote 1")
	assert.Len(t, f.session.created, 1)
	wish, err := f.community.Wish(context.Background(), "guild", 1)
	require.NoError(t, err)
	assert.True(t, wish.Granted)
	assert.Equal(t, 3, wish.Votes)

	f.sendAs("u2", nil, "!unvote 1")
	assert.Equal(t, f.text(i18n.MsgUnvoteDone, map[string]interface{}{"ID": 1, "Votes": 2}), f.session.last(t).Content)
	f.sendAs("u2", nil, "!unvote 1")
	assert.Equal(t, f.text(i18n.MsgUnvoteNone, map[string]interface{}{"ID": 1}), f.session.last(t).Content)

	f.sendAs("u2", nil, "!vote 99")
	assert.Equal(t, f.text(i18n.MsgWishNotFound, map[string]interface{}{"ID": 99}), f.session.last(t).Content)
	f.sendAs("u2", nil, "!vote soon")
	assert.Equal(t, f.text(i18n.MsgWishIDUsage, map[string]interface{}{"Command": "vote"}), f.session.last(t).Content)
}

func TestWishValidation(t *testing.T) {
	f := newCommunityFixture(t, func(cfg *config.Config) {
		cfg.Community.WishRoles = []string{"dreamer"}
	})

	f.sendAs("u1", []string{"everyone"}, "!wish video a lore deep dive")
	assert.Equal(t, f.text(i18n.MsgWishNotDreamer, nil), f.session.last(t).Content)

	f.sendAs("u1", []string{"dreamer"}, "!wish")
	assert.Equal(t, f.text(i18n.MsgWishUsage, nil), f.session.last(t).Content)
	f.sendAs("u1", []string{"dreamer"}, "!wish song something")
	assert.Equal(t, f.text(i18n.MsgWishUsage, nil), f.session.last(t).Content)
	f.sendAs("u1", []string{"dreamer"}, "!wish channel no name given")
	assert.Equal(t, f.text(i18n.MsgWishChannelName, nil), f.session.last(t).Content)
	f.sendAs("u1", []string{"dreamer"}, "!wish channel !!!: punctuation only")
	assert.Equal(t, f.text(i18n.MsgWishChannelName, nil), f.session.last(t).Content)

	f.sendAs("u1", []string{"dreamer"}, "!wish video a lore deep dive")
	assert.Equal(t, f.text(i18n.MsgWishMade, map[string]interface{}{"ID": 1, "Kind": "video"}), f.session.last(t).Content)
	f.sendAs("mod", moderator, "!wish other moderators may always wish")
	assert.Equal(t, f.text(i18n.MsgWishMade, map[string]interface{}{"ID": 2, "Kind": "other"}), f.session.last(t).Content)

	f.router.Dispatch(context.Background(), &discordgo.Message{
		ChannelID: "dm",
		Content:   "!wish video in private",
		Author:    &discordgo.User{ID: "u1"},
	})
	assert.Equal(t, f.text(i18n.MsgGuildOnly, nil), f.session.last(t).Content)
}

func TestTopWishesAndRemoval(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.sendAs("u1", nil, "!topwishes")
	assert.Equal(t, f.text(i18n.MsgWishesEmpty, nil), f.session.last(t).Content)

	f.sendAs("u1", nil, "!wish video the hungry fog explained")
	f.sendAs("u2", nil, "!wish other a weekly riddle")
	f.sendAs("u3", nil, "!vote 2")
	f.sendAs("u4", nil, "!vote 2")
	f.sendAs("u3", nil, "!vote 1")

	f.sendAs("u1", nil, "!topwishes")
	listing := f.session.last(t).Content
	assert.Contains(t, listing, "#2 2 votes - a weekly riddle")
	assert.Contains(t, listing, "#1 1 votes - the hungry fog explained")
	assert.Less(t, strings.Index(listing, "#2 "), strings.Index(listing, "#1 "))

	f.sendAs("u1", nil, "!topvideos")
	assert.Contains(t, f.session.last(t).Content, "the hungry fog explained")
	assert.NotContains(t, f.session.last(t).Content, "riddle")
	f.sendAs("u1", nil, "!topwishes other 1")
	assert.Contains(t, f.session.last(t).Content, "riddle")

	f.sendAs("u2", nil, "!removewish 1")
	assert.Equal(t, f.text(i18n.MsgNotModerator, nil), f.session.last(t).Content)
	f.sendAs("u1", nil, "!removewish 1")
	assert.Equal(t, f.text(i18n.MsgWishRemoved, map[string]interface{}{"ID": 1}), f.session.last(t).Content)
	f.sendAs("mod", moderator, "!removewish 2")
	assert.Equal(t, f.text(i18n.MsgWishRemoved, map[string]interface{}{"ID": 2}), f.session.last(t).Content)
	f.sendAs("mod", moderator, "!removewish 2")
	assert.Equal(t, f.text(i18n.MsgWishNotFound, map[string]interface{}{"ID": 2}), f.session.last(t).Content)

	wishes, err := f.community.TopWishes(context.Background(), "guild", "", 0)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}

func TestSetThreshold(t *testing.T) {
	f := newCommunityFixture(t, nil)

	f.sendAs("u1", nil, "!setthreshold 1")
	assert.Equal(t, f.text(i18n.MsgNotModerator, nil), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!setthreshold 1")
	assert.Equal(t, f.text(i18n.MsgThresholdSet, map[string]interface{}{"Threshold": 1}), f.session.last(t).Content)

	f.sendAs("mod", moderator, "!setthreshold zero")
	assert.Equal(t, f.text(i18n.MsgThresholdUsage, map[string]interface{}{"Threshold": 1}), f.session.last(t).Content)

	f.sendAs("u1", nil, "!wish channel lore: theories")
	f.sendAs("u2", nil, "!vote 1")
	require.Len(t, f.session.created, 1)
	assert.Equal(t, "lore", f.session.created[0].Name)
}

func TestChannelName(t *testing.T) {
	tests := map[string]string{
		"Art Corner":       "art-corner",
		"  spaced   out  ": "spaced-out",
		"lore--theories":   "lore-theories",
		"emoji ✨ names":    "emoji-names",
		"under_score":      "under_score",
		"!!!":              "",
		"trailing dash -":  "trailing-dash",
		"Ümlaut Räume":     "ümlaut-räume",
	}
	for in, want := range tests {
		assert.Equal(t, want, channelName(in), in)
	}
}

func TestWishKindParsing(t *testing.T) {
	k, ok := models.ParseWishKind("VIDEO")
	assert.True(t, ok)
	assert.Equal(t, models.WishVideo, k)
	_, ok = models.ParseWishKind("song")
	assert.False(t, ok)
}
