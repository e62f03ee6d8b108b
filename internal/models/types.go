package models

import (
	"strings"
	"time"
)

// TopicPlaceholder marks where an extracted topic is interpolated.
const TopicPlaceholder = "{topic}"

// ResponseCandidate is one catalog entry. The ID is permanent; the text may be edited.
type ResponseCandidate struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// IsTemplate reports whether the candidate carries a topic placeholder.
func (c ResponseCandidate) IsTemplate() bool {
	return strings.Contains(c.Text, TopicPlaceholder)
}

// ResponsePool is a named, ordered set of candidates.
type ResponsePool struct {
	Name       string
	Candidates []ResponseCandidate
}

// Templates returns the candidates containing the topic placeholder.
func (p ResponsePool) Templates() []ResponseCandidate {
	var out []ResponseCandidate
	for _, c := range p.Candidates {
		if c.IsTemplate() {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether id names a candidate in the pool.
func (p ResponsePool) Contains(id string) bool {
	for _, c := range p.Candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// UsageRecord tracks how often a response has been selected within a pool.
type UsageRecord struct {
	ResponseID string     `json:"response_id"`
	Text       string     `json:"text"`
	UsageCount int        `json:"usage_count"`
	LastUsed   *time.Time `json:"last_used"`
}

// MessageRecord is one remembered exchange with a user.
type MessageRecord struct {
	Content   string
	Intent    string
	Topic     string
	Timestamp time.Time
	Response  string
}

// InboundMessage is a mention delivered to the engine.
type InboundMessage struct {
	UserID    string
	ChannelID string
	Text      string
	Timestamp time.Time
}

// Warning is a moderator's mark against a guild member.
type Warning struct {
	GuildID     string    `json:"guild_id"`
	UserID      string    `json:"user_id"`
	ModeratorID string    `json:"moderator_id"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// WishKind classifies a community suggestion.
type WishKind string

const (
	WishVideo   WishKind = "video"
	WishChannel WishKind = "channel"
	WishOther   WishKind = "other"
)

// ParseWishKind maps user input to a kind.
func ParseWishKind(s string) (WishKind, bool) {
	switch k := WishKind(strings.ToLower(s)); k {
	case WishVideo, WishChannel, WishOther:
		return k, true
	}
	return "", false
}

// Wish is a community suggestion members vote on. Granted is set once a
// channel wish has crossed the vote threshold and its channel was created.
type Wish struct {
	ID          int64     `json:"id"`
	GuildID     string    `json:"guild_id"`
	AuthorID    string    `json:"author_id"`
	Kind        WishKind  `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description"`
	Votes       int       `json:"votes"`
	Granted     bool      `json:"granted"`
	CreatedAt   time.Time `json:"created_at"`
}
