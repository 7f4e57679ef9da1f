package resolve

import "testing"

func TestSimilarity_Reflexive(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"jeffrey epstein", "x", "ghislaine maxwell"} {
		if got := Similarity(name, name); got != 1.0 {
			t.Fatalf("expected similarity(%q, %q) == 1.0, got %f", name, name, got)
		}
	}
}

func TestSimilarity_TransposedLetters(t *testing.T) {
	t.Parallel()

	score := Similarity("jeffrey epstein", "jeffery epstein")
	if score < DefaultSimilarityThreshold {
		t.Fatalf("expected transposed-letter pair to clear the default threshold, got %f", score)
	}
}

func TestSimilarity_DistinctNames(t *testing.T) {
	t.Parallel()

	score := Similarity("bubba", "bill clinton")
	if score >= DefaultSimilarityThreshold {
		t.Fatalf("expected distinct names to stay below the default threshold, got %f", score)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	left := Similarity("jeffrey epstein", "jeffery epstein")
	right := Similarity("jeffery epstein", "jeffrey epstein")
	if left != right {
		t.Fatalf("expected symmetric scores, got %f and %f", left, right)
	}
}

func TestSimilarity_EmptyInputs(t *testing.T) {
	t.Parallel()

	if got := Similarity("", ""); got != 1.0 {
		t.Fatalf("expected two empty strings to score 1.0, got %f", got)
	}
	if got := Similarity("epstein", ""); got != 0 {
		t.Fatalf("expected empty right side to score 0, got %f", got)
	}
}

func TestSimilarity_PrefixBoost(t *testing.T) {
	t.Parallel()

	// Same character inventory, but one pair shares a 4-rune prefix.
	boosted := Similarity("maxwell", "maxwelt")
	plain := Similarity("llewxam", "tlewxam")
	if boosted <= plain {
		t.Fatalf("expected common-prefix pair to score higher: %f vs %f", boosted, plain)
	}
}
