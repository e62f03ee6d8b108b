package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain", "hello there", "hello there"},
		{"bold", "**kebab** time", "kebab time"},
		{"italic", "what is *the void*?", "what is the void?"},
		{"inline code", "thoughts on `minecraft`?", "thoughts on minecraft?"},
		{"strikethrough", "i ~~love~~ hate this", "i love hate this"},
		{"entities", "tom & jerry", "tom & jerry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToPlainText(tt.in))
		})
	}
}

func TestToPlainTextKeepsParagraphs(t *testing.T) {
	got := ToPlainText("first line\n\nsecond line")
	assert.Equal(t, "first line\n\nsecond line", got)
}
