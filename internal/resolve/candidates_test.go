package resolve

import "testing"

func TestGenerateCandidates_FindsNearDuplicates(t *testing.T) {
	t.Parallel()

	entities := []EntityRecord{
		{EntityID: 1, CanonicalName: "Jeffrey Epstein"},
		{EntityID: 2, CanonicalName: "Jeffery  Epstein!"},
		{EntityID: 3, CanonicalName: "Bill Clinton"},
	}

	candidates := GenerateCandidates(entities, DefaultSimilarityThreshold)
	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}

	got := candidates[0]
	if got.SrcEntityID != 1 || got.DstEntityID != 2 {
		t.Fatalf("expected candidate {1, 2}, got {%d, %d}", got.SrcEntityID, got.DstEntityID)
	}
	if got.Score < DefaultSimilarityThreshold {
		t.Fatalf("expected candidate score >= threshold, got %f", got.Score)
	}
}

func TestGenerateCandidates_ExactDuplicateScoresOne(t *testing.T) {
	t.Parallel()

	entities := []EntityRecord{
		{EntityID: 7, CanonicalName: "Ghislaine Maxwell"},
		{EntityID: 9, CanonicalName: "ghislaine  maxwell"},
	}

	candidates := GenerateCandidates(entities, DefaultSimilarityThreshold)
	if len(candidates) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(candidates))
	}
	if candidates[0].Score != 1.0 {
		t.Fatalf("expected exact duplicate to score 1.0, got %f", candidates[0].Score)
	}
	if candidates[0].SrcEntityID != 7 || candidates[0].DstEntityID != 9 {
		t.Fatalf("expected src=min dst=max, got {%d, %d}", candidates[0].SrcEntityID, candidates[0].DstEntityID)
	}
}

func TestGenerateCandidates_SkipsEmptyNames(t *testing.T) {
	t.Parallel()

	entities := []EntityRecord{
		{EntityID: 1, CanonicalName: "42!"},
		{EntityID: 2, CanonicalName: "..."},
	}
	if candidates := GenerateCandidates(entities, DefaultSimilarityThreshold); len(candidates) != 0 {
		t.Fatalf("expected no candidates for unnormalizable names, got %d", len(candidates))
	}
}

func TestGenerateCandidates_Deterministic(t *testing.T) {
	t.Parallel()

	entities := []EntityRecord{
		{EntityID: 4, CanonicalName: "alan dershowitz"},
		{EntityID: 2, CanonicalName: "alan dershowitz"},
		{EntityID: 8, CanonicalName: "alan dershowits"},
	}

	first := GenerateCandidates(entities, DefaultSimilarityThreshold)
	second := GenerateCandidates(entities, DefaultSimilarityThreshold)
	if len(first) != len(second) {
		t.Fatalf("expected stable candidate counts, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected stable ordering at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCountBuckets(t *testing.T) {
	t.Parallel()

	entities := []EntityRecord{
		{EntityID: 1, CanonicalName: "Jeffrey Epstein"},
		{EntityID: 2, CanonicalName: "Jeffery Epstein"},
		{EntityID: 3, CanonicalName: "Bill Clinton"},
		{EntityID: 4, CanonicalName: "###"},
	}

	total, comparable := CountBuckets(entities)
	if total != 2 {
		t.Fatalf("expected 2 buckets, got %d", total)
	}
	if comparable != 1 {
		t.Fatalf("expected 1 comparable bucket, got %d", comparable)
	}
}
