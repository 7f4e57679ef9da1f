package namenorm

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes an entity surface form: lowercase, letters and
// spaces only, internal whitespace collapsed, trimmed. Blocking and similarity
// scoring both go through this function so bucket membership and scores agree
// on what "the same text" means. Idempotent.
func Normalize(name string) string {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
