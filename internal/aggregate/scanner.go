package aggregate

import (
	"sort"
	"strings"

	ahocorasick "github.com/BobuSumisu/aho-corasick"
)

// Match is one occurrence of a pattern in the scanned text. Pattern indexes
// the slice given at construction; Start is the byte offset of the hit.
type Match struct {
	Pattern int
	Start   int
}

// Scanner reports every position where a pattern occurs in a text. Hits are
// positional: every start offset is one occurrence, so overlapping hits of
// the same pattern are all reported.
type Scanner interface {
	Scan(text string) []Match
}

type naiveScanner struct {
	patterns []string
}

// NewNaiveScanner scans with repeated substring search, advancing one byte
// past each hit. Quadratic in the worst case but obviously correct; the
// reference the Aho-Corasick scanner is checked against.
func NewNaiveScanner(patterns []string) Scanner {
	return &naiveScanner{patterns: patterns}
}

func (s *naiveScanner) Scan(text string) []Match {
	var matches []Match
	for i, pattern := range s.patterns {
		if pattern == "" {
			continue
		}
		from := 0
		for {
			idx := strings.Index(text[from:], pattern)
			if idx < 0 {
				break
			}
			matches = append(matches, Match{Pattern: i, Start: from + idx})
			from += idx + 1
		}
	}
	return matches
}

type trieScanner struct {
	trie *ahocorasick.Trie
	// trie pattern index -> caller pattern index; empty patterns are not
	// inserted into the trie, so the two numberings can diverge.
	index []int
}

// NewTrieScanner builds an Aho-Corasick automaton over the patterns and
// reports every occurrence. Agrees with NewNaiveScanner on any input; use it
// when the pattern set is large.
func NewTrieScanner(patterns []string) Scanner {
	builder := ahocorasick.NewTrieBuilder()
	index := make([]int, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}
		builder.AddString(pattern)
		index = append(index, i)
	}
	return &trieScanner{
		trie:  builder.Build(),
		index: index,
	}
}

func (s *trieScanner) Scan(text string) []Match {
	trieMatches := s.trie.MatchString(text)
	matches := make([]Match, 0, len(trieMatches))
	for _, match := range trieMatches {
		matches = append(matches, Match{
			Pattern: s.index[match.Pattern()],
			Start:   int(match.Pos()),
		})
	}
	return matches
}

type span struct {
	start int
	end   int
}

// CountEntityMentions folds raw matches into per-entity occurrence counts.
// A match fully contained in a longer match credited to the same entity is
// the same textual span, not a second mention: an entity whose alias set
// holds both "jeffrey epstein" and "epstein" counts one mention for the text
// "jeffrey epstein". Overlaps that are not containment still count
// separately.
func CountEntityMentions(matches []Match, patterns []string, owners [][]int64) map[int64]int {
	spansByEntity := make(map[int64][]span)
	for _, match := range matches {
		s := span{start: match.Start, end: match.Start + len(patterns[match.Pattern])}
		for _, entityID := range owners[match.Pattern] {
			spansByEntity[entityID] = append(spansByEntity[entityID], s)
		}
	}

	counts := make(map[int64]int, len(spansByEntity))
	for entityID, spans := range spansByEntity {
		sort.Slice(spans, func(i, j int) bool {
			if spans[i].start != spans[j].start {
				return spans[i].start < spans[j].start
			}
			return spans[i].end > spans[j].end
		})

		maxEnd := -1
		for _, s := range spans {
			// Starts are non-decreasing, so end <= maxEnd means containment.
			if s.end <= maxEnd {
				continue
			}
			counts[entityID]++
			if s.end > maxEnd {
				maxEnd = s.end
			}
		}
	}
	return counts
}
