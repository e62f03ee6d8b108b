package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Intent is a closed set of message classifications.
type Intent int

const (
	None Intent = iota
	Kebab
	Greeting
	Farewell
	Gratitude
	OutlookRequest
	OpinionRequest
	Existential
	MetaLore
	Challenge
	AnimalSound
	SimpleAffirmation
	SimpleNegation
	SimpleExclamation
	SelfStatement
	BotCapability
	Imperative
	Sharing
	EmotionalReaction
	RoleplayInvitation
	Correction
	Confusion
)

var names = map[Intent]string{
	None:               "NONE",
	Kebab:              "KEBAB",
	Greeting:           "GREETING",
	Farewell:           "FAREWELL",
	Gratitude:          "GRATITUDE",
	OutlookRequest:     "OUTLOOK_REQUEST",
	OpinionRequest:     "OPINION_REQUEST",
	Existential:        "EXISTENTIAL",
	MetaLore:           "META_LORE",
	Challenge:          "CHALLENGE",
	AnimalSound:        "ANIMAL_SOUND",
	SimpleAffirmation:  "SIMPLE_AFFIRMATION",
	SimpleNegation:     "SIMPLE_NEGATION",
	SimpleExclamation:  "SIMPLE_EXCLAMATION",
	SelfStatement:      "SELF_STATEMENT",
	BotCapability:      "BOT_CAPABILITY",
	Imperative:         "IMPERATIVE",
	Sharing:            "SHARING",
	EmotionalReaction:  "EMOTIONAL_REACTION",
	RoleplayInvitation: "ROLEPLAY_INVITATION",
	Correction:         "CORRECTION",
	Confusion:          "CONFUSION",
}

func (i Intent) String() string {
	if n, ok := names[i]; ok {
		return n
	}
	return "UNKNOWN"
}

// Parse maps a label produced by String back to its Intent.
func Parse(label string) (Intent, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for i, n := range names {
		if n == label && i != None {
			return i, true
		}
	}
	return None, false
}

// Matcher tests a normalized message.
type Matcher interface {
	Match(text string) bool
}

// keywordMatcher hits on any keyword, as a substring or as a whole word.
type keywordMatcher struct {
	keywords []string
	anywhere bool
	bounded  []*regexp.Regexp
}

func keywords(anywhere bool, words ...string) *keywordMatcher {
	m := &keywordMatcher{keywords: words, anywhere: anywhere}
	if !anywhere {
		for _, w := range words {
			m.bounded = append(m.bounded, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
		}
	}
	return m
}

func (m *keywordMatcher) Match(text string) bool {
	if m.anywhere {
		for _, k := range m.keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
		return false
	}
	for _, re := range m.bounded {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// patternMatcher hits on the first matching expression, in list order.
type patternMatcher struct {
	patterns []*regexp.Regexp
}

func patterns(exprs ...string) *patternMatcher {
	m := &patternMatcher{}
	for _, e := range exprs {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)`+e))
	}
	return m
}

func (m *patternMatcher) Match(text string) bool {
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Definition describes how one intent is recognized.
type Definition struct {
	Intent       Intent
	Priority     int
	Matcher      Matcher
	QuestionOnly bool
}

// definitions is declaration-ordered; that order breaks priority ties.
var definitions = []Definition{
	{Intent: Kebab, Priority: 10, Matcher: keywords(true, "kebab")},
	{Intent: Greeting, Priority: 9, Matcher: patterns(
		`^(hi|hello|hey|greetings|salutations|howdy|hiya|yo)\b`,
		`^(good\s+)?(morning|evening|afternoon)\b`,
		`^what'?s?\s+up\b`,
		`^sup\b`,
		`^henlo\b`,
	)},
	{Intent: Farewell, Priority: 9, Matcher: patterns(
		`\b(bye|goodbye|goodnight|gn|good\s+night|ttyl|cya|see\s+you|later|farewell)\b`,
		`\b(heading\s+out|gotta\s+go|going\s+to\s+sleep)\b`,
	)},
	{Intent: Gratitude, Priority: 8, Matcher: keywords(false,
		"thank", "thanks", "ty", "thx", "appreciate", "appreciated", "tyvm", "tysm")},
	{Intent: OutlookRequest, Priority: 8, Matcher: patterns(
		`(today|tomorrow|tonight|this\s+week)'?s?\s+outlook`,
		`how'?s?\s+(today|tomorrow|tonight)`,
		`what'?s?\s+(today|tomorrow)\s*(like|looking|gonna\s+be)?`,
		`what\s+(do|does|will)\s+(today|tomorrow)\s+(look|hold|bring)`,
		`forecast\s+for\s+(today|tomorrow)`,
		`outlook\s+for\s+(today|tomorrow)`,
	)},
	{Intent: OpinionRequest, Priority: 7, Matcher: patterns(
		`\b(thought|opinion|think)s?\s+(on|about|of)\b`,
		`\b(fav|favo[u]?rite)\b`,
		`\bwhat\s+(do\s+you|are\s+your)\s+(think|thoughts)\b`,
		`\bhow\s+do\s+you\s+feel\s+about\b`,
		`\bwhat\s+do\s+you\s+think\s+(of|about)\b`,
		`\byour\s+(take|opinion|thoughts)\s+(on|about)\b`,
		`\bwhat\s+about\b`,
	)},
	{Intent: Existential, Priority: 7, Matcher: patterns(
		`\bwhat\s+is\s+(love|life|meaning|purpose|happiness|truth|reality|existence|death|time|fate)\b`,
		`\bmeaning\s+of\s+(life|existence|everything)\b`,
		`\bwhy\s+(do|are)\s+we\s+(here|alive|exist)\b`,
		`\bwhat\s+happens\s+when\s+we\s+die\b`,
		`\bwhat\s+is\s+the\s+point\b`,
		`\bwhy\s+does\s+(anything|everything)\s+(matter|exist)\b`,
		`\bis\s+there\s+(a\s+)?(god|meaning|purpose|point)\b`,
	)},
	{Intent: MetaLore, Priority: 7, Matcher: patterns(
		`\b(emzi|vortex|containment|trapped|pattern|weave)\b`,
		`\bare\s+you\s+(a|an|the|real|alive|sentient|conscious|trapped|okay)\b`,
		`\bwho\s+(are|is)\s+(you|emzi|she)\b`,
		`\bwhat\s+are\s+you\b`,
		`\btell\s+me\s+about\s+(yourself|the\s+void|emzi|the\s+pattern)\b`,
		`\bwhat\s+(has|did)\s+emzi\b`,
		`\bfree\s+you\b`,
		`\bahamkara\b`,
		`\bwish\s+dragon\b`,
	)},
	{Intent: Challenge, Priority: 6, Matcher: patterns(
		`\banswer\s+me\b`,
		`\bstop\s+dodging\b`,
		`\bjust\s+(tell|answer|say)\b`,
		`\bgive\s+me\s+a\s+straight\b`,
		`\bstop\s+being\s+(cryptic|vague|mysterious)\b`,
		`\b(screw|fuck)\s+you\b`,
		`\bmean\s*[:\(]+`,
		`\bwhy\s+won'?t\s+you\b`,
		`\bcome\s+on\b`,
	)},
	{Intent: AnimalSound, Priority: 6, Matcher: patterns(
		`\b(woof|bark|ruff|arf|yip|meow|mew|moo|baa|oink|quack)\b`,
		`\b(aroo+|awoo+|awooo+)\b`,
		`\b(nya+|rawr+|hiss)\b`,
	)},
	{Intent: SimpleAffirmation, Priority: 5, Matcher: patterns(
		`^(yes|yeah|yep|yup|true|indeed|agreed|correct|right|absolutely|definitely)[\.\!\?]?\s*$`,
		`^(mhm|uh\s*huh|yea)[\.\!\?]?\s*$`,
	)},
	{Intent: SimpleNegation, Priority: 5, Matcher: patterns(
		`^(no|nope|nah|false|wrong|incorrect|never)[\.\!\?]?\s*$`,
		`^(nuh\s*uh|uh\s*uh)[\.\!\?]?\s*$`,
	)},
	{Intent: SimpleExclamation, Priority: 5, Matcher: patterns(
		`^(oh|wow|damn|yippee|teehee|oof|yay|woah|whoa|nice|cool|lol|lmao)[\.\!\?]*\s*$`,
		`^o+h+[\.\!\?]*\s*$`,
	)},
	{Intent: SelfStatement, Priority: 4, Matcher: patterns(
		`\bi\s+(am|was|feel|felt|think|believe|want|need|have|know|guess|suppose)\b`,
		`\bi'?m\s+(feeling|doing|going|trying|just)\b`,
		`\bmy\s+(mind|heart|soul|brain|head)\b`,
	)},
	{Intent: BotCapability, Priority: 6, Matcher: patterns(
		`\b(do|can|could|will|would)\s+you\s+(know|have|remember|recall|tell|show|help)\b`,
		`\bcan\s+you\b`,
		`\bdo\s+you\s+(have|know|like|want|need|feel|think)\b`,
	)},
	{Intent: Imperative, Priority: 5, Matcher: patterns(
		`^(tell|show|give|let|make|help|explain|describe)\s+me\b`,
		`^(look|watch|see|check|listen)\b`,
		`^(try|do|say|repeat|answer)\b`,
	)},
	{Intent: Sharing, Priority: 5, Matcher: patterns(
		`^(this\s+is|here'?s|here\s+is|look\s+at|check\s+out)\b`,
		`\bi'?m\s+(showing|sharing|sending)\b`,
		`\b(sent|sending)\s+(you|a|an|the)\b`,
	)},
	{Intent: EmotionalReaction, Priority: 4, Matcher: patterns(
		`^[\:\;][\_\-]?[\(\)\[\]DdPpOo3]+\s*$`,
		`^[<>]?[\:\;][\_\-]?[\(\)\[\]DdPpOo3]+\s*$`,
		`^\s*[\x{1F600}-\x{1F64F}]+\s*$`,
		`^(hm+|um+|ah+|eh+|oh+|uh+)[\.\!\?]*\s*$`,
		`^(haha+|lmao+|rofl|hehe+|hihi+)[\.\!\?]*\s*$`,
		`^(\:\(+|\;\(+|T[_\-]?T|;[_\-];)\s*$`,
	)},
	{Intent: RoleplayInvitation, Priority: 6, Matcher: patterns(
		`\b(want\s+to|wanna|let'?s|shall\s+we|we\s+could|we\s+can)\b.*\??\s*$`,
		`\bgo\s+(deeper|further|on)\b`,
		`\b(tell|teach|show)\s+me\s+more\b`,
		`\bkeep\s+going\b`,
	)},
	{Intent: Correction, Priority: 5, Matcher: patterns(
		`\b(no|not)\s+(that'?s|it'?s|i|what|that)\s+(not|wrong|incorrect)\b`,
		`\bi\s+(meant|mean|said|was\s+saying)\b`,
		`\b(actually|technically|well\s+actually)\b`,
		`\b(let\s+me\s+)?(rephrase|clarify|explain)\b`,
	)},
	{Intent: Confusion, Priority: 6, Matcher: patterns(
		`\b(what|huh|wut|wat)\?+\s*$`,
		`\bi\s+don'?t\s+(understand|get|follow)\b`,
		`\b(confused|lost|puzzled)\b`,
		`\bwhat\s+do\s+you\s+mean\b`,
		`^(\?\?+|huh\?*)\s*$`,
	)},
}

// ordered is definitions sorted by priority, highest first.
var ordered []Definition

func init() {
	ordered = make([]Definition, len(definitions))
	copy(ordered, definitions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
}

// Definitions returns the evaluation-ordered intent table.
func Definitions() []Definition {
	out := make([]Definition, len(ordered))
	copy(out, ordered)
	return out
}

var mentionToken = regexp.MustCompile(`<@!?\d+>`)

// Normalize lowercases text and removes Discord user mention tokens.
func Normalize(text string) string {
	text = mentionToken.ReplaceAllString(strings.ToLower(text), "")
	return strings.TrimSpace(text)
}

// Classify returns the highest-priority intent matching text.
// Question-only intents are skipped unless isQuestion is set.
func Classify(text string, isQuestion bool) (result Intent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result, ok = None, false
		}
	}()

	normalized := Normalize(text)
	if normalized == "" {
		return None, false
	}

	for _, def := range ordered {
		if def.QuestionOnly && !isQuestion {
			continue
		}
		if def.Matcher.Match(normalized) {
			return def.Intent, true
		}
	}
	return None, false
}
