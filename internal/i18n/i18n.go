package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/dreambot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer from the embedded message files
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFileFS(locales, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang, cfg.DefaultLanguage)
	}
	if _, ok := localizers[cfg.DefaultLanguage]; !ok {
		localizers[cfg.DefaultLanguage] = i18n.NewLocalizer(bundle, cfg.DefaultLanguage)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Default returns the message in the default language
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgHelp               = "help"
	MsgPong               = "pong"
	MsgStatsHeader        = "stats_header"
	MsgStatsEntry         = "stats_entry"
	MsgStatsEmpty         = "stats_empty"
	MsgStatsUnknownPool   = "stats_unknown_pool"
	MsgContextHeader      = "context_header"
	MsgContextEntry       = "context_entry"
	MsgContextEmpty       = "context_empty"
	MsgEscapeActive       = "escape_active"
	MsgEscapeNone         = "escape_none"
	MsgUnescapeDone       = "unescape_done"
	MsgUnescapeNotEscaped = "unescape_not_escaped"
	MsgUnescapeUsage      = "unescape_usage"
	MsgGuildOnly          = "guild_only"
	MsgModUsage           = "mod_usage"
	MsgModSelf            = "mod_self"
	MsgModForbidden       = "mod_forbidden"
	MsgNoReason           = "no_reason"
	MsgModLog             = "mod_log"
	MsgKickDone           = "kick_done"
	MsgBanDone            = "ban_done"
	MsgUnbanDone          = "unban_done"
	MsgUnbanNotFound      = "unban_not_found"
	MsgTimeoutDone        = "timeout_done"
	MsgTimeoutInvalid     = "timeout_invalid"
	MsgWarnDone           = "warn_done"
	MsgWarnAutoTimeout    = "warn_auto_timeout"
	MsgWarningsHeader     = "warnings_header"
	MsgWarningsEntry      = "warnings_entry"
	MsgWarningsNone       = "warnings_none"
	MsgWarningsCleared    = "warnings_cleared"
	MsgWarningsClearNone  = "warnings_clear_none"
	MsgPurgeTooMany       = "purge_too_many"
	MsgPurgeDone          = "purge_done"
	MsgWishUsage          = "wish_usage"
	MsgWishNotDreamer     = "wish_not_dreamer"
	MsgWishChannelName    = "wish_channel_name"
	MsgWishMade           = "wish_made"
	MsgWishNotFound       = "wish_not_found"
	MsgWishIDUsage        = "wish_id_usage"
	MsgVoteDone           = "vote_done"
	MsgVoteAlready        = "vote_already"
	MsgUnvoteDone         = "unvote_done"
	MsgUnvoteNone         = "unvote_none"
	MsgWishGranted        = "wish_granted"
	MsgWishRemoved        = "wish_removed"
	MsgWishesHeader       = "wishes_header"
	MsgWishesEntry        = "wishes_entry"
	MsgWishesEmpty        = "wishes_empty"
	MsgThresholdSet       = "threshold_set"
	MsgThresholdUsage     = "threshold_usage"
	MsgDigestHeader       = "digest_header"
	MsgDigestKind         = "digest_kind"
	MsgNotModerator       = "not_moderator"
	MsgRateLimitExceeded  = "rate_limited"
	MsgUnknownCommand     = "unknown_command"
	MsgError              = "error"
)
