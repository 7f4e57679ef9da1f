package resolve

import "testing"

func TestLowestIDAbsorbed(t *testing.T) {
	t.Parallel()

	a := EntityRecord{EntityID: 3, CanonicalName: "jeffrey epstein"}
	b := EntityRecord{EntityID: 11, CanonicalName: "jeffery epstein"}

	dst, src := LowestIDAbsorbed(a, b)
	if dst.EntityID != 11 || src.EntityID != 3 {
		t.Fatalf("expected larger id to survive, got dst=%d src=%d", dst.EntityID, src.EntityID)
	}

	dst, src = LowestIDAbsorbed(b, a)
	if dst.EntityID != 11 || src.EntityID != 3 {
		t.Fatalf("expected argument order not to matter, got dst=%d src=%d", dst.EntityID, src.EntityID)
	}
}

func TestMostCompleteSurvives(t *testing.T) {
	t.Parallel()

	sparse := EntityRecord{EntityID: 20, AliasCount: 0, MentionTotal: 1}
	rich := EntityRecord{EntityID: 5, AliasCount: 4, MentionTotal: 90}

	dst, src := MostCompleteSurvives(sparse, rich)
	if dst.EntityID != 5 || src.EntityID != 20 {
		t.Fatalf("expected richer record to survive, got dst=%d src=%d", dst.EntityID, src.EntityID)
	}
}

func TestMostCompleteSurvives_TieFallsBackToID(t *testing.T) {
	t.Parallel()

	a := EntityRecord{EntityID: 2, AliasCount: 1, MentionTotal: 10}
	b := EntityRecord{EntityID: 9, AliasCount: 1, MentionTotal: 10}

	dst, src := MostCompleteSurvives(a, b)
	if dst.EntityID != 9 || src.EntityID != 2 {
		t.Fatalf("expected id tie-break, got dst=%d src=%d", dst.EntityID, src.EntityID)
	}
}

func TestUnionAliases(t *testing.T) {
	t.Parallel()

	got := unionAliases(
		[]string{"J. Epstein", "Jeffrey E."},
		"Jeffery Epstein",
		[]string{"J. Epstein", "Jeff"},
	)

	want := []string{"J. Epstein", "Jeffrey E.", "Jeffery Epstein", "Jeff"}
	if len(got) != len(want) {
		t.Fatalf("unexpected union size: got %d want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected union at %d: got %q want %q", i, got[i], want[i])
		}
	}
}
