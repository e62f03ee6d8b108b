package intent

import (
	"regexp"
	"strings"
)

var modalLead = []*regexp.Regexp{
	regexp.MustCompile(`^(will|would|should|could|can|may|might|shall|must)\s+\w+`),
	regexp.MustCompile(`^(is|are|was|were|am|has|have|had|do|does|did)\s+\w+`),
}

// IsQuestion reports whether text reads as a question: it carries a question
// mark or opens with a modal or auxiliary verb.
func IsQuestion(text string) bool {
	normalized := Normalize(text)
	if strings.Contains(normalized, "?") {
		return true
	}
	for _, re := range modalLead {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}
