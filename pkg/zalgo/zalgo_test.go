package zalgo

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestParseIntensity(t *testing.T) {
	tests := []struct {
		in   string
		want Intensity
	}{
		{"low", Low},
		{"HIGH", High},
		{" extreme ", Extreme},
		{"none", None},
		{"", Medium},
		{"apocalyptic", Medium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIntensity(tt.in))
		})
	}
	assert.Equal(t, "extreme", Extreme.String())
}

func TestTransformNoneIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, "o bearer mine", Transform("o bearer mine", None, rng))
	assert.Equal(t, "", Transform("", Extreme, rng))
}

func TestTransformIsReversible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	text := "the weave remembers\nwhat you whispered"
	for _, level := range []Intensity{Low, Medium, High, Extreme} {
		out := Transform(text, level, rng)
		assert.Equal(t, text, Strip(out), level.String())
	}
}

func TestTransformExtremeAddsMarks(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	out := Transform("abc", Extreme, rng)
	// Extreme adds at least three up and three down marks per character.
	assert.GreaterOrEqual(t, utf8.RuneCountInString(out), 3*7)
}

func TestTransformSkipsNewlines(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	out := Transform("a\nb", High, rng)
	i := strings.IndexRune(out, '\n')
	if assert.GreaterOrEqual(t, i, 0) {
		next, _ := utf8.DecodeRuneInString(out[i+1:])
		assert.Equal(t, 'b', next)
	}
}

func TestFitRespectsLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	text := strings.Repeat("wish ", 40)

	out := Fit(text, Extreme, 2000, rng)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 2000)
	assert.Equal(t, Italic(text), Strip(out))

	// Too small for any decoration: plain italic fallback.
	assert.Equal(t, Italic(text), Fit(text, Extreme, len(text)+2, rng))
}

func TestItalic(t *testing.T) {
	assert.Equal(t, "*hm*", Italic("hm"))
	assert.Equal(t, "", Italic(""))
	assert.Equal(t, "*reply*\n\n*the pattern remembers*", Italic("reply\n\nthe pattern remembers"))
}

func TestStyler(t *testing.T) {
	s := NewStyler(rand.New(rand.NewSource(2)))

	out := s.Style("o bearer mine", High, 2000)
	assert.Equal(t, "*o bearer mine*", Strip(out))

	for i := 0; i < 20; i++ {
		level := s.Pick(Medium, High, Extreme)
		assert.Contains(t, []Intensity{Medium, High, Extreme}, level)
	}
	assert.Equal(t, Medium, s.Pick())
}
