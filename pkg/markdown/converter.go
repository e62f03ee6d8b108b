package markdown

import (
	"html"
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	blockEnd  = regexp.MustCompile(`(?i)</(p|li|h[1-6]|blockquote|pre)>|<br\s*/?>`)
	anyTag    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	manyLines = regexp.MustCompile(`\n{3,}`)
)

// ToPlainText renders Discord-flavoured markdown and drops all formatting,
// leaving the words a reader would see.
func ToPlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML,
	})
	out := string(blackfriday.Run([]byte(markdown),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	))

	out = blockEnd.ReplaceAllString(out, "\n")
	out = anyTag.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	out = manyLines.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	if out == "" {
		return strings.TrimSpace(markdown)
	}
	return out
}
