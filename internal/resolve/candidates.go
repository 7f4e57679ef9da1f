package resolve

import (
	"runtime"
	"sort"
	"sync"

	"horse.fit/registry/internal/namenorm"
)

// Candidate is a pair of entities judged similar enough to possibly be the
// same real-world identity. SrcEntityID is always the numerically smaller id.
type Candidate struct {
	SrcEntityID int64
	DstEntityID int64
	Score       float64
}

type bucketMember struct {
	entityID   int64
	normalized string
}

// GenerateCandidates blocks the entities into buckets keyed by BucketKey and
// scores every unordered pair within each bucket. Pairs scoring at or above
// threshold are returned as candidates ordered by (src, dst). Entities whose
// normalized name is empty are skipped. Buckets share no mutable state, so
// they are scored concurrently.
func GenerateCandidates(entities []EntityRecord, threshold float64) []Candidate {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	buckets := make(map[string][]bucketMember)
	for _, entity := range entities {
		normalized := namenorm.Normalize(entity.CanonicalName)
		if normalized == "" {
			continue
		}
		key := BucketKey(normalized)
		buckets[key] = append(buckets[key], bucketMember{
			entityID:   entity.EntityID,
			normalized: normalized,
		})
	}

	work := make(chan []bucketMember, len(buckets))
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		work <- members
	}
	close(work)

	var (
		mu         sync.Mutex
		candidates []Candidate
		wg         sync.WaitGroup
	)
	for range runtime.GOMAXPROCS(0) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for members := range work {
				found := scoreBucket(members, threshold)
				if len(found) == 0 {
					continue
				}
				mu.Lock()
				candidates = append(candidates, found...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SrcEntityID != candidates[j].SrcEntityID {
			return candidates[i].SrcEntityID < candidates[j].SrcEntityID
		}
		return candidates[i].DstEntityID < candidates[j].DstEntityID
	})
	return candidates
}

func scoreBucket(members []bucketMember, threshold float64) []Candidate {
	var found []Candidate
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			score := Similarity(members[i].normalized, members[j].normalized)
			if score < threshold {
				continue
			}
			src, dst := members[i].entityID, members[j].entityID
			if src > dst {
				src, dst = dst, src
			}
			found = append(found, Candidate{
				SrcEntityID: src,
				DstEntityID: dst,
				Score:       score,
			})
		}
	}
	return found
}

// CountBuckets reports how many non-trivial buckets the entity set blocks
// into; used for run summaries.
func CountBuckets(entities []EntityRecord) (total, comparable int) {
	seen := make(map[string]int)
	for _, entity := range entities {
		normalized := namenorm.Normalize(entity.CanonicalName)
		if normalized == "" {
			continue
		}
		seen[BucketKey(normalized)]++
	}
	for _, n := range seen {
		if n >= 2 {
			comparable++
		}
	}
	return len(seen), comparable
}
