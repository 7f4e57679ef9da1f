package resolve

import (
	"fmt"
	"strings"
)

const lengthBandWidth = 5

// BucketKey partitions normalized names into small candidate buckets so only
// same-bucket pairs are scored, avoiding the all-pairs comparison. The key is
// the first rune, the last three runes of the last whitespace-delimited token,
// and a coarse length band. Empty input returns "" and is excluded from
// indexing.
//
// Known recall trade-off: true matches that differ in first letter, last-token
// suffix, or enough in length to cross a band boundary land in different
// buckets and are never compared.
func BucketKey(normalized string) string {
	runes := []rune(normalized)
	if len(runes) == 0 {
		return ""
	}

	tokens := strings.Fields(normalized)
	lastToken := []rune(tokens[len(tokens)-1])
	suffixStart := max(0, len(lastToken)-3)
	suffix := string(lastToken[suffixStart:])

	band := (len(runes) + lengthBandWidth - 1) / lengthBandWidth

	return fmt.Sprintf("%c|%s|%d", runes[0], suffix, band)
}
