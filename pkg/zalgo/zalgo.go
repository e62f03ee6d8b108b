// Package zalgo decorates text with stacked combining marks.
package zalgo

import (
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Intensity controls how many marks are stacked per character.
type Intensity int

const (
	None Intensity = iota
	Low
	Medium
	High
	Extreme
)

var intensityNames = map[string]Intensity{
	"none":    None,
	"low":     Low,
	"medium":  Medium,
	"high":    High,
	"extreme": Extreme,
}

// ParseIntensity maps a config name to an Intensity, defaulting to Medium.
func ParseIntensity(name string) Intensity {
	if i, ok := intensityNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return i
	}
	return Medium
}

func (i Intensity) String() string {
	for name, v := range intensityNames {
		if v == i {
			return name
		}
	}
	return "medium"
}

// bounds returns the per-character min and max for up and down marks.
func (i Intensity) bounds() (int, int) {
	switch i {
	case Low:
		return 0, 2
	case High:
		return 2, 4
	case Extreme:
		return 3, 6
	default:
		return 1, 3
	}
}

var (
	up = []rune{
		'\u030d', '\u030e', '\u0304', '\u0305', '\u033f', '\u0311', '\u0306', '\u0310', '\u0352',
		'\u0357', '\u0351', '\u0307', '\u0308', '\u030a', '\u0342', '\u0343', '\u0344', '\u034a',
		'\u034b', '\u034c', '\u0303', '\u0302', '\u030c', '\u0350', '\u0300', '\u030b', '\u030f',
		'\u0312', '\u0313', '\u0314', '\u033d', '\u0309', '\u0363',
	}
	mid = []rune{
		'\u0315', '\u031b', '\u0340', '\u0341', '\u0358', '\u0321', '\u0322', '\u0327', '\u0328',
		'\u0334', '\u0335', '\u0336', '\u034f', '\u035c', '\u035d', '\u035e', '\u035f', '\u0360',
	}
	down = []rune{
		'\u0316', '\u0317', '\u0318', '\u0319', '\u031c', '\u031d', '\u031e', '\u031f', '\u0320',
		'\u0324', '\u0325', '\u0326', '\u0329', '\u032a', '\u032b', '\u032c', '\u032d', '\u032e',
		'\u032f', '\u0330', '\u0331', '\u0332', '\u0333', '\u0339', '\u033a', '\u033b', '\u033c',
		'\u0345', '\u0347', '\u0348', '\u0349', '\u034d', '\u034e', '\u0353', '\u0354', '\u0355',
	}
)

const midChance = 0.3

// Transform decorates every character of text. rng must not be shared across
// goroutines without external locking.
func Transform(text string, intensity Intensity, rng *rand.Rand) string {
	if intensity == None || text == "" {
		return text
	}
	lo, hi := intensity.bounds()

	var b strings.Builder
	b.Grow(len(text) * (hi + 1) * 3)
	for _, r := range text {
		b.WriteRune(r)
		if r == '\n' {
			continue
		}
		for n := between(rng, lo, hi); n > 0; n-- {
			b.WriteRune(up[rng.Intn(len(up))])
		}
		if rng.Float64() < midChance {
			for n := between(rng, 0, hi-1); n > 0; n-- {
				b.WriteRune(mid[rng.Intn(len(mid))])
			}
		}
		for n := between(rng, lo, hi); n > 0; n-- {
			b.WriteRune(down[rng.Intn(len(down))])
		}
	}
	return b.String()
}

func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Fit transforms text at the requested intensity, stepping down until the
// italicized result fits within maxRunes. Plain text is the last resort.
func Fit(text string, intensity Intensity, maxRunes int, rng *rand.Rand) string {
	for i := intensity; i > None; i-- {
		styled := Italic(Transform(text, i, rng))
		if utf8.RuneCountInString(styled) <= maxRunes {
			return styled
		}
	}
	return Italic(text)
}

// Italic wraps each paragraph of text in Discord italics.
func Italic(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		if strings.TrimSpace(p) != "" {
			paragraphs[i] = "*" + p + "*"
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// Strip removes combining marks added by Transform.
func Strip(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '\u0300' && r <= '\u036f' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Styler applies Fit with a shared, locked random source.
type Styler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStyler creates a Styler. A nil rng is seeded from the clock.
func NewStyler(rng *rand.Rand) *Styler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Styler{rng: rng}
}

// Style decorates text at intensity within maxRunes.
func (s *Styler) Style(text string, intensity Intensity, maxRunes int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Fit(text, intensity, maxRunes, s.rng)
}

// Pick returns one of levels at random, or Medium when none are given.
func (s *Styler) Pick(levels ...Intensity) Intensity {
	if len(levels) == 0 {
		return Medium
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return levels[s.rng.Intn(len(levels))]
}
