package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		hint   Intent
		want   string
		wantOK bool
	}{
		{"opinion", "thoughts on minecraft?", OpinionRequest, "minecraft", true},
		{"opinion with mention", "<@1> what do you think about halo 3?", OpinionRequest, "halo 3", true},
		{"favorite", "what's your favorite cheese!", OpinionRequest, "cheese", true},
		{"existential", "what is love?", Existential, "love", true},
		{"meta lore", "are you trapped?", MetaLore, "trapped", true},
		{"greeting name", "hi dreambot", Greeting, "dreambot", true},
		{"outlook period", "what's tomorrow's outlook", OutlookRequest, "tomorrow", true},
		{"cross intent fallback", "tell me about the void", Imperative, "the void", true},
		{"keyword fallback", "i'd say it's on you, not emzi", MetaLore, "emzi", true},
		{"bare keyword", "kebab", Kebab, "", false},
		{"bare greeting", "hi", Greeting, "", false},
		{"empty", "<@!5>", OpinionRequest, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractTopic(tt.text, tt.hint)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"  minecraft?!  ", "minecraft", true},
		{"going to the", "going to", true},
		{"cats and", "cats", true},
		{"x", "", false},
		{"?", "", false},
		{
			"the quick brown fox jumps over the lazy dog and keeps running far away",
			"the quick brown fox jumps over the lazy dog and...",
			true,
		},
	}

	for _, tt := range tests {
		got, ok := cleanTopic(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestExtractTopicTruncatesLongCaptures(t *testing.T) {
	t.Parallel()

	got, ok := ExtractTopic("thoughts on the quick brown fox jumps over the lazy dog and keeps running far away", OpinionRequest)
	assert.True(t, ok)
	assert.Equal(t, "the quick brown fox jumps over the lazy dog and...", got)
}
