// Package aggregate recounts entity mentions across the document corpus and
// keeps the per-entity totals consistent with the mention rows.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
	"horse.fit/registry/internal/searchindex"
)

// Scope narrows an aggregation run. The zero value means the full corpus.
type Scope struct {
	Since       *time.Time
	DocumentIDs []int64
}

// IsBulk reports whether the scope covers the whole corpus. Bulk runs suspend
// the entity search index around the write phase.
func (s Scope) IsBulk() bool {
	return s.Since == nil && len(s.DocumentIDs) == 0
}

// Result summarizes one aggregation run.
type Result struct {
	Entities  int
	Documents int
	Upserted  int
	Removed   int
	Failed    int
}

type Service struct {
	pool       *db.Pool
	index      *searchindex.Maintainer
	audit      audit.Recorder
	logger     zerolog.Logger
	newScanner func(patterns []string) Scanner
	actorID    string
}

func NewService(pool *db.Pool, index *searchindex.Maintainer, recorder audit.Recorder, logger zerolog.Logger, actorID string) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if strings.TrimSpace(actorID) == "" {
		actorID = "aggregator"
	}
	return &Service{
		pool:       pool,
		index:      index,
		audit:      recorder,
		logger:     logger,
		newScanner: NewTrieScanner,
		actorID:    actorID,
	}
}

// Run recounts mentions for every document in scope. Each document is its own
// transaction; a document that fails to scan or write is logged and counted,
// not fatal to the batch. Re-running over unchanged documents is a no-op.
func (s *Service) Run(ctx context.Context, scope Scope) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("aggregator service is not initialized")
	}

	patterns, owners, entityIDs, err := s.loadPatterns(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(patterns) == 0 {
		s.logger.Info().Msg("no entities to aggregate")
		return Result{}, nil
	}

	docIDs, err := s.loadDocumentIDs(ctx, scope)
	if err != nil {
		return Result{}, err
	}

	result := Result{Entities: len(entityIDs)}
	scanner := s.newScanner(patterns)

	process := func(ctx context.Context) error {
		touched := make(map[int64]struct{})
		for _, docID := range docIDs {
			upserted, removed, err := s.aggregateDocument(ctx, docID, scanner, patterns, owners, touched)
			if err != nil {
				result.Failed++
				s.logger.Error().Err(err).Int64("document_id", docID).Msg("document aggregation failed")
				continue
			}
			result.Documents++
			result.Upserted += upserted
			result.Removed += removed
		}
		return s.recomputeTotals(ctx, touched)
	}

	if scope.IsBulk() && s.index != nil {
		err = s.index.WithSuspended(ctx, process)
	} else {
		err = process(ctx)
	}
	if err != nil {
		return result, err
	}

	now := globaltime.UTC()
	if err := s.audit.Record(ctx, audit.Entry{
		ActorID:    s.actorID,
		ActorType:  "service",
		Action:     "mention_backfill",
		TargetType: "document_batch",
		TargetID:   int64(result.Documents),
		Reason:     fmt.Sprintf("upserted %d, removed %d, failed %d", result.Upserted, result.Removed, result.Failed),
		Timestamp:  now,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("audit record failed after aggregation")
	}

	s.logger.Info().
		Int("entities", result.Entities).
		Int("documents", result.Documents).
		Int("upserted", result.Upserted).
		Int("removed", result.Removed).
		Int("failed", result.Failed).
		Bool("bulk", scope.IsBulk()).
		Msg("aggregation run finished")

	return result, nil
}

// aggregateDocument rescans one document and reconciles its mention rows in a
// single transaction: observed counts are upserted (first_seen_at preserved),
// rows for entities no longer found in the text are removed.
func (s *Service) aggregateDocument(ctx context.Context, docID int64, scanner Scanner, patterns []string, owners [][]int64, touched map[int64]struct{}) (upserted, removed int, err error) {
	content, contentType, language, err := s.loadDocument(ctx, docID)
	if err != nil {
		return 0, 0, err
	}

	text, err := PrepareText(content, contentType)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare document_id=%d: %w", docID, err)
	}
	lowered := strings.ToLower(text)

	counts := CountEntityMentions(scanner.Scan(lowered), patterns, owners)

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("begin aggregation tx document_id=%d: %w", docID, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := globaltime.UTC()

	const upsert = `
INSERT INTO registry.mentions (entity_id, document_id, count, first_seen_at, last_seen_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (entity_id, document_id)
DO UPDATE SET count = EXCLUDED.count, last_seen_at = EXCLUDED.last_seen_at
`
	observed := make([]int64, 0, len(counts))
	for entityID, n := range counts {
		if _, err := tx.Exec(ctx, upsert, entityID, docID, n, now); err != nil {
			return 0, 0, fmt.Errorf("upsert mention entity_id=%d document_id=%d: %w", entityID, docID, err)
		}
		observed = append(observed, entityID)
		touched[entityID] = struct{}{}
		upserted++
	}

	const dropStale = `
DELETE FROM registry.mentions
WHERE document_id = $1 AND NOT (entity_id = ANY($2))
RETURNING entity_id
`
	rows, err := tx.Query(ctx, dropStale, docID, observed)
	if err != nil {
		return 0, 0, fmt.Errorf("drop stale mentions document_id=%d: %w", docID, err)
	}
	for rows.Next() {
		var entityID int64
		if err := rows.Scan(&entityID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan stale mention document_id=%d: %w", docID, err)
		}
		touched[entityID] = struct{}{}
		removed++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("iterate stale mentions document_id=%d: %w", docID, err)
	}
	rows.Close()

	if code := DetectLanguage(text); code != "" && (language == nil || *language != code) {
		const setLanguage = `UPDATE registry.documents SET language = $2 WHERE document_id = $1`
		if _, err := tx.Exec(ctx, setLanguage, docID, code); err != nil {
			return 0, 0, fmt.Errorf("set document language document_id=%d: %w", docID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit aggregation tx document_id=%d: %w", docID, err)
	}
	return upserted, removed, nil
}

// recomputeTotals rebuilds mention_total and document_count from mention rows
// for every entity whose rows changed during the run.
func (s *Service) recomputeTotals(ctx context.Context, touched map[int64]struct{}) error {
	if len(touched) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(touched))
	for entityID := range touched {
		ids = append(ids, entityID)
	}

	const q = `
UPDATE registry.entities e
SET
	mention_total = COALESCE(agg.total, 0),
	document_count = COALESCE(agg.docs, 0),
	updated_at = $2
FROM unnest($1::bigint[]) AS t(entity_id)
LEFT JOIN (
	SELECT entity_id, SUM(count) AS total, COUNT(*) AS docs
	FROM registry.mentions
	WHERE entity_id = ANY($1)
	GROUP BY entity_id
) agg ON agg.entity_id = t.entity_id
WHERE e.entity_id = t.entity_id
`
	if _, err := s.pool.Exec(ctx, q, ids, globaltime.UTC()); err != nil {
		return fmt.Errorf("recompute entity totals: %w", err)
	}
	return nil
}

// loadPatterns builds the lowercase search pattern set from every entity's
// canonical name and alias variants. A pattern shared by several entities
// credits each of them, so owners maps pattern index to entity ids.
func (s *Service) loadPatterns(ctx context.Context) (patterns []string, owners [][]int64, entityIDs []int64, err error) {
	const q = `
SELECT entity_id, canonical_name, alias_variants
FROM registry.entities
ORDER BY entity_id
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	indexOf := make(map[string]int)
	for rows.Next() {
		var entityID int64
		var name string
		var aliasJSON []byte
		if err := rows.Scan(&entityID, &name, &aliasJSON); err != nil {
			return nil, nil, nil, fmt.Errorf("scan entity row: %w", err)
		}

		variants := []string{name}
		if len(aliasJSON) > 0 {
			var aliases []string
			if err := json.Unmarshal(aliasJSON, &aliases); err != nil {
				return nil, nil, nil, fmt.Errorf("decode alias variants entity_id=%d: %w", entityID, err)
			}
			variants = append(variants, aliases...)
		}

		seen := make(map[string]struct{}, len(variants))
		for _, variant := range variants {
			lowered := strings.ToLower(strings.TrimSpace(variant))
			if lowered == "" {
				continue
			}
			if _, dup := seen[lowered]; dup {
				continue
			}
			seen[lowered] = struct{}{}

			pi, exists := indexOf[lowered]
			if !exists {
				pi = len(patterns)
				indexOf[lowered] = pi
				patterns = append(patterns, lowered)
				owners = append(owners, nil)
			}
			owners[pi] = append(owners[pi], entityID)
		}
		entityIDs = append(entityIDs, entityID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate entity rows: %w", err)
	}
	return patterns, owners, entityIDs, nil
}

func (s *Service) loadDocumentIDs(ctx context.Context, scope Scope) ([]int64, error) {
	var (
		rows *db.Rows
		err  error
	)
	switch {
	case len(scope.DocumentIDs) > 0:
		rows, err = s.pool.Query(ctx, `
SELECT document_id FROM registry.documents
WHERE document_id = ANY($1)
ORDER BY document_id`, scope.DocumentIDs)
	case scope.Since != nil:
		rows, err = s.pool.Query(ctx, `
SELECT document_id FROM registry.documents
WHERE created_at >= $1
ORDER BY document_id`, *scope.Since)
	default:
		rows, err = s.pool.Query(ctx, `
SELECT document_id FROM registry.documents
ORDER BY document_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("query documents in scope: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document ids: %w", err)
	}
	return ids, nil
}

func (s *Service) loadDocument(ctx context.Context, docID int64) (content, contentType string, language *string, err error) {
	const q = `
SELECT content, content_type, language
FROM registry.documents
WHERE document_id = $1
`
	err = s.pool.QueryRow(ctx, q, docID).Scan(&content, &contentType, &language)
	if err != nil {
		if db.IsNoRows(err) {
			return "", "", nil, fmt.Errorf("document_id=%d not found", docID)
		}
		return "", "", nil, fmt.Errorf("load document_id=%d: %w", docID, err)
	}
	return content, contentType, language, nil
}
