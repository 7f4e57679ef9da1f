package resolve

// EntityRecord is the slice of an entity the resolver needs: identity, the
// display name, and enough completeness signal for survivor selection.
type EntityRecord struct {
	EntityID      int64
	CanonicalName string
	AliasCount    int
	MentionTotal  int64
}

// SurvivorPolicy decides which of two entities survives a merge. It returns
// the survivor (dst) first and the absorbed entity (src) second.
type SurvivorPolicy func(a, b EntityRecord) (dst, src EntityRecord)

// LowestIDAbsorbed keeps the entity with the larger id and absorbs the
// smaller, matching the candidate canonicalization {src=min, dst=max}.
func LowestIDAbsorbed(a, b EntityRecord) (EntityRecord, EntityRecord) {
	if a.EntityID > b.EntityID {
		return a, b
	}
	return b, a
}

// MostCompleteSurvives keeps the record with more aliases, then more recorded
// mentions. Ties fall back to LowestIDAbsorbed so the outcome is always
// deterministic.
func MostCompleteSurvives(a, b EntityRecord) (EntityRecord, EntityRecord) {
	if a.AliasCount != b.AliasCount {
		if a.AliasCount > b.AliasCount {
			return a, b
		}
		return b, a
	}
	if a.MentionTotal != b.MentionTotal {
		if a.MentionTotal > b.MentionTotal {
			return a, b
		}
		return b, a
	}
	return LowestIDAbsorbed(a, b)
}
