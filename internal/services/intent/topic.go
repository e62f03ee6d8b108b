package intent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxTopicRunes = 50

type topicPattern struct {
	re    *regexp.Regexp
	group int
}

func topics(exprs ...string) []topicPattern {
	out := make([]topicPattern, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, topicPattern{re: regexp.MustCompile(`(?i)` + e), group: 1})
	}
	return out
}

// topicPatternOrder fixes the cross-intent fallback sequence.
var topicPatternOrder = []Intent{OpinionRequest, Existential, MetaLore, Greeting, OutlookRequest}

var topicPatterns = map[Intent][]topicPattern{
	OpinionRequest: topics(
		`(?:thoughts?|opinions?)\s+(?:on|about|of)\s+(.+?)[\?\.\!]?\s*$`,
		`what\s+(?:do\s+you|are\s+your)\s+(?:think|thoughts?)\s+(?:on|about|of)\s+(.+?)[\?\.\!]?\s*$`,
		`how\s+do\s+you\s+feel\s+about\s+(.+?)[\?\.\!]?\s*$`,
		`(?:fav(?:ou?rite)?|best)\s+(.+?)[\?\.\!]?\s*$`,
		`what\s+about\s+(.+?)[\?\.\!]?\s*$`,
	),
	Existential: topics(
		`what\s+is\s+(love|life|meaning|purpose|happiness|truth|reality|existence|consciousness|death|time|fate|destiny)[\?\.\!]?\s*$`,
		`(?:the\s+)?meaning\s+of\s+(life|existence|everything)[\?\.\!]?\s*$`,
		`why\s+do\s+we\s+(.+?)[\?\.\!]?\s*$`,
		`what\s+happens\s+when\s+(?:we|you|i)\s+(.+?)[\?\.\!]?\s*$`,
	),
	MetaLore: topics(
		`are\s+you\s+(?:a\s+)?(.+?)[\?\.\!]?\s*$`,
		`(?:who|what)\s+is\s+(.+?)[\?\.\!]?\s*$`,
		`tell\s+me\s+about\s+(.+?)[\?\.\!]?\s*$`,
		`what\s+(?:is|are)\s+(?:the\s+)?(.+?)[\?\.\!]?\s*$`,
	),
	Greeting: topics(
		`^(?:hi|hello|hey)\s+(.+?)[\?\.\!]?\s*$`,
	),
	OutlookRequest: topics(
		`(today|tomorrow|tonight|this\s+week)'?s?\s+outlook`,
		`outlook\s+for\s+(today|tomorrow|tonight|this\s+week)`,
	),
}

// keywordTopics are used when an intent was triggered by a bare keyword.
var keywordTopics = map[Intent][]*regexp.Regexp{
	MetaLore: boundedWords("emzi", "vortex", "containment", "ahamkara", "void", "pattern", "weave"),
	Existential: boundedWords("love", "life", "meaning", "purpose", "happiness", "truth", "reality",
		"existence", "consciousness", "death", "time", "fate", "destiny"),
}

func boundedWords(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`(?i)\b(`+regexp.QuoteMeta(w)+`)\b`))
	}
	return out
}

var danglingWord = regexp.MustCompile(`(?i)\s+(the|a|an|to|for|with|and|or)$`)

// ExtractTopic pulls a short subject phrase out of text for template interpolation.
func ExtractTopic(text string, hint Intent) (topic string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			topic, ok = "", false
		}
	}()

	normalized := Normalize(text)
	if normalized == "" {
		return "", false
	}

	if candidates, exists := topicPatterns[hint]; exists {
		if raw, found := tryTopicPatterns(normalized, candidates); found {
			return cleanTopic(raw)
		}
	}

	for _, i := range topicPatternOrder {
		if raw, found := tryTopicPatterns(normalized, topicPatterns[i]); found {
			return cleanTopic(raw)
		}
	}

	for _, re := range keywordTopics[hint] {
		if m := re.FindStringSubmatch(normalized); m != nil {
			return m[1], true
		}
	}

	return "", false
}

func tryTopicPatterns(text string, candidates []topicPattern) (string, bool) {
	for _, p := range candidates {
		if m := p.re.FindStringSubmatch(text); m != nil {
			return m[p.group], true
		}
	}
	return "", false
}

// cleanTopic trims punctuation and dangling words, bounds the length and
// rejects fragments too short to be meaningful.
func cleanTopic(topic string) (string, bool) {
	topic = strings.TrimRight(strings.TrimSpace(topic), "?.!")
	topic = danglingWord.ReplaceAllString(topic, "")

	if utf8.RuneCountInString(topic) > maxTopicRunes {
		cut := string([]rune(topic)[:maxTopicRunes])
		if idx := strings.LastIndex(cut, " "); idx >= 0 {
			cut = cut[:idx]
		}
		topic = cut + "..."
	}

	if utf8.RuneCountInString(topic) < 2 {
		return "", false
	}
	return topic, true
}
