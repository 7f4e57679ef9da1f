// Package resolve implements entity resolution: blocking, Jaro-Winkler
// scoring, merge-candidate logging, and the transactional merge applier.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
)

// MergeReasonAliasCluster marks merge-log rows produced by fuzzy clustering.
const MergeReasonAliasCluster = "alias_cluster"

type Service struct {
	pool       *db.Pool
	audit      audit.Recorder
	logger     zerolog.Logger
	survivor   SurvivorPolicy
	actorID    string
	beginMerge func(ctx context.Context) (mergeSession, error)
}

// RunOptions controls one resolution pass.
type RunOptions struct {
	Threshold float64
	DryRun    bool
	Apply     bool
	Reason    string
}

// RunResult summarizes one resolution pass.
type RunResult struct {
	Scanned    int
	Buckets    int
	Candidates int
	Logged     int
	Applied    int
	Skipped    int
}

func NewService(pool *db.Pool, recorder audit.Recorder, logger zerolog.Logger, survivor SurvivorPolicy, actorID string) *Service {
	if survivor == nil {
		survivor = LowestIDAbsorbed
	}
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if strings.TrimSpace(actorID) == "" {
		actorID = "resolver"
	}
	return &Service{
		pool:       pool,
		audit:      recorder,
		logger:     logger,
		survivor:   survivor,
		actorID:    actorID,
		beginMerge: beginSQLMerge(pool),
	}
}

// Run loads every entity, generates merge candidates within blocking buckets,
// writes one merge-log row per candidate, and (unless dry-run or apply is
// disabled) applies each merge as its own transaction. Candidates whose
// entities have already been absorbed earlier in the batch are skipped.
func (s *Service) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if s == nil || s.pool == nil {
		return RunResult{}, fmt.Errorf("resolver service is not initialized")
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	reason := strings.TrimSpace(opts.Reason)
	if reason == "" {
		reason = MergeReasonAliasCluster
	}

	entities, err := s.loadEntities(ctx)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Scanned: len(entities)}
	_, result.Buckets = CountBuckets(entities)

	candidates := GenerateCandidates(entities, threshold)
	result.Candidates = len(candidates)

	if opts.DryRun {
		for _, candidate := range candidates {
			s.logger.Info().
				Int64("src_entity_id", candidate.SrcEntityID).
				Int64("dst_entity_id", candidate.DstEntityID).
				Float64("score", candidate.Score).
				Str("reason", reason).
				Msg("dry run merge candidate")
		}
		return result, nil
	}

	byID := make(map[int64]EntityRecord, len(entities))
	for _, entity := range entities {
		byID[entity.EntityID] = entity
	}

	now := globaltime.UTC()
	for _, candidate := range candidates {
		if err := s.logCandidate(ctx, candidate, reason); err != nil {
			return result, err
		}
		result.Logged++

		if !opts.Apply {
			continue
		}

		a, okA := byID[candidate.SrcEntityID]
		b, okB := byID[candidate.DstEntityID]
		if !okA || !okB {
			result.Skipped++
			continue
		}

		dst, src := s.survivor(a, b)
		err := s.ApplyMerge(ctx, src.EntityID, dst.EntityID)
		if errors.Is(err, ErrEntityMissing) {
			// Already absorbed by an earlier candidate in this batch.
			result.Skipped++
			delete(byID, src.EntityID)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("apply merge src=%d dst=%d: %w", src.EntityID, dst.EntityID, err)
		}
		delete(byID, src.EntityID)
		result.Applied++
	}

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("buckets", result.Buckets).
		Int("candidates", result.Candidates).
		Int("logged", result.Logged).
		Int("applied", result.Applied).
		Int("skipped", result.Skipped).
		Float64("threshold", threshold).
		Time("at", now).
		Msg("resolution pass finished")

	return result, nil
}

func (s *Service) loadEntities(ctx context.Context) ([]EntityRecord, error) {
	const q = `
SELECT entity_id, canonical_name, alias_variants, mention_total
FROM registry.entities
ORDER BY entity_id
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []EntityRecord
	for rows.Next() {
		var record EntityRecord
		var aliasJSON []byte
		if err := rows.Scan(&record.EntityID, &record.CanonicalName, &aliasJSON, &record.MentionTotal); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if len(aliasJSON) > 0 {
			var aliases []string
			if err := json.Unmarshal(aliasJSON, &aliases); err != nil {
				return nil, fmt.Errorf("decode alias variants entity_id=%d: %w", record.EntityID, err)
			}
			record.AliasCount = len(aliases)
		}
		entities = append(entities, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}
	return entities, nil
}

func (s *Service) logCandidate(ctx context.Context, candidate Candidate, reason string) error {
	const q = `
INSERT INTO registry.merge_log (src_entity_id, dst_entity_id, score, reason, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := s.pool.Exec(ctx, q,
		candidate.SrcEntityID,
		candidate.DstEntityID,
		candidate.Score,
		reason,
		globaltime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert merge_log src=%d dst=%d: %w", candidate.SrcEntityID, candidate.DstEntityID, err)
	}
	return nil
}
