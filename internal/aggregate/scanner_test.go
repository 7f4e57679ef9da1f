package aggregate

import "testing"

func countOf(matches []Match, pattern int) int {
	n := 0
	for _, match := range matches {
		if match.Pattern == pattern {
			n++
		}
	}
	return n
}

func TestNaiveScanner_CountsEveryOccurrence(t *testing.T) {
	t.Parallel()

	scanner := NewNaiveScanner([]string{"epstein"})
	matches := scanner.Scan("epstein met epstein again")
	if got := countOf(matches, 0); got != 2 {
		t.Fatalf("expected 2 occurrences, got %d", got)
	}
}

func TestNaiveScanner_OverlappingHits(t *testing.T) {
	t.Parallel()

	scanner := NewNaiveScanner([]string{"aa"})
	matches := scanner.Scan("aaa")
	if got := countOf(matches, 0); got != 2 {
		t.Fatalf("expected overlapping hits to count, got %d", got)
	}
}

func TestNaiveScanner_ReportsStartOffsets(t *testing.T) {
	t.Parallel()

	scanner := NewNaiveScanner([]string{"epstein"})
	matches := scanner.Scan("epstein met epstein")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Start != 0 || matches[1].Start != 12 {
		t.Fatalf("unexpected offsets: %+v", matches)
	}
}

func TestNaiveScanner_EmptyPatternIgnored(t *testing.T) {
	t.Parallel()

	scanner := NewNaiveScanner([]string{"", "maxwell"})
	matches := scanner.Scan("maxwell")
	if got := countOf(matches, 0); got != 0 {
		t.Fatalf("expected empty pattern to match nothing, got %d", got)
	}
	if got := countOf(matches, 1); got != 1 {
		t.Fatalf("expected 1 occurrence, got %d", got)
	}
}

func TestScanners_Agree(t *testing.T) {
	t.Parallel()

	patterns := []string{"epstein", "maxwell", "jeffrey epstein", "aa", ""}
	texts := []string{
		"",
		"epstein met epstein again",
		"jeffrey epstein and ghislaine maxwell",
		"aaaa",
		"no names here",
		"maxwellmaxwell epstein",
	}

	naive := NewNaiveScanner(patterns)
	trie := NewTrieScanner(patterns)

	for _, text := range texts {
		want := naive.Scan(text)
		got := trie.Scan(text)
		for pi, pattern := range patterns {
			if countOf(want, pi) != countOf(got, pi) {
				t.Fatalf("scanners disagree on %q pattern %q: naive=%d trie=%d",
					text, pattern, countOf(want, pi), countOf(got, pi))
			}
		}

		wantOffsets := make(map[Match]int)
		for _, match := range want {
			wantOffsets[match]++
		}
		for _, match := range got {
			if wantOffsets[match] == 0 {
				t.Fatalf("trie reported match %+v the naive scanner did not, text %q", match, text)
			}
			wantOffsets[match]--
		}
	}
}

func TestScanners_Idempotent(t *testing.T) {
	t.Parallel()

	scanner := NewTrieScanner([]string{"epstein"})
	text := "epstein met epstein again"

	first := scanner.Scan(text)
	second := scanner.Scan(text)
	if len(first) != len(second) {
		t.Fatalf("expected repeated scans to agree, got %d then %d matches", len(first), len(second))
	}
}

func TestCountEntityMentions_NestedAliasCountsOnce(t *testing.T) {
	t.Parallel()

	// Entity 1 owns both the full name and the bare surname, the shape
	// alias unioning produces after a merge. One textual span must count
	// once even though both patterns hit it.
	patterns := []string{"jeffrey epstein", "epstein"}
	owners := [][]int64{{1}, {1, 2}}

	scanner := NewNaiveScanner(patterns)
	counts := CountEntityMentions(scanner.Scan("jeffrey epstein was seen"), patterns, owners)

	if counts[1] != 1 {
		t.Fatalf("expected 1 mention for the nested-alias entity, got %d", counts[1])
	}
	if counts[2] != 1 {
		t.Fatalf("expected 1 mention for the surname-only entity, got %d", counts[2])
	}
}

func TestCountEntityMentions_SeparateSpansStillCount(t *testing.T) {
	t.Parallel()

	patterns := []string{"jeffrey epstein", "epstein"}
	owners := [][]int64{{1}, {1}}

	scanner := NewNaiveScanner(patterns)
	counts := CountEntityMentions(scanner.Scan("epstein met jeffrey epstein"), patterns, owners)

	// The bare "epstein" at offset 0 and the full name are distinct spans;
	// the "epstein" inside the full name is not.
	if counts[1] != 2 {
		t.Fatalf("expected 2 mentions, got %d", counts[1])
	}
}

func TestCountEntityMentions_OverlapWithoutContainment(t *testing.T) {
	t.Parallel()

	patterns := []string{"aa"}
	owners := [][]int64{{7}}

	scanner := NewNaiveScanner(patterns)
	counts := CountEntityMentions(scanner.Scan("aaa"), patterns, owners)

	if counts[7] != 2 {
		t.Fatalf("expected partial overlaps to count separately, got %d", counts[7])
	}
}
