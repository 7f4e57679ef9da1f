package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"horse.fit/registry/internal/audit"
	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
)

// ErrEntityMissing reports a merge side that no longer exists, typically
// because an earlier candidate in the same batch already absorbed it. Callers
// skip these candidates without failing the batch.
var ErrEntityMissing = errors.New("merge references a missing entity")

type entityRow struct {
	EntityID      int64
	CanonicalName string
	AliasVariants []string
	MentionTotal  int64
}

// mergeSession is the persistence surface one merge drives, in order: lock
// both sides, fold mentions and relationships onto the survivor, update the
// survivor, delete the absorbed row, commit. The Postgres implementation
// wraps a transaction; tests drive the same sequence against an in-memory
// implementation to check the merge invariants.
type mergeSession interface {
	// LockEntity loads and locks one entity row, or returns an error
	// wrapping ErrEntityMissing when the row is gone.
	LockEntity(ctx context.Context, entityID int64) (entityRow, error)
	MergeMentions(ctx context.Context, srcID, dstID int64) error
	// MergeRelationships returns how many src edges were dropped because
	// the re-pointed triple already existed under dst.
	MergeRelationships(ctx context.Context, srcID, dstID int64) (int64, error)
	// UpdateSurvivor replaces dst's alias set and recomputes its totals
	// from its mention rows.
	UpdateSurvivor(ctx context.Context, dstID int64, aliases []string, at time.Time) error
	DeleteEntity(ctx context.Context, entityID int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ApplyMerge folds the src entity into dst inside a single transaction:
// mentions are re-pointed (counts summed where both sides mention the same
// document), relationships are re-pointed with self-loops dropped and
// uniqueness collisions skipped, alias variants are unioned, the survivor's
// totals are recomputed from its mention rows, and the src row is deleted.
// Any failure rolls the whole merge back; entities are never left
// half-merged.
func (s *Service) ApplyMerge(ctx context.Context, srcID, dstID int64) error {
	if s == nil || s.beginMerge == nil {
		return fmt.Errorf("resolver service is not initialized")
	}
	if srcID == dstID {
		return fmt.Errorf("merge src and dst must differ, got %d", srcID)
	}

	sess, err := s.beginMerge(ctx)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() {
		_ = sess.Rollback(ctx)
	}()

	// Lock in id order so two merges touching the same pair cannot deadlock.
	firstID, secondID := srcID, dstID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}
	locked := make(map[int64]entityRow, 2)
	for _, id := range []int64{firstID, secondID} {
		row, err := sess.LockEntity(ctx, id)
		if err != nil {
			return err
		}
		locked[id] = row
	}
	src, dst := locked[srcID], locked[dstID]

	now := globaltime.UTC()

	if err := sess.MergeMentions(ctx, srcID, dstID); err != nil {
		return err
	}

	collisions, err := sess.MergeRelationships(ctx, srcID, dstID)
	if err != nil {
		return err
	}
	if collisions > 0 {
		s.logger.Warn().
			Int64("src_entity_id", srcID).
			Int64("dst_entity_id", dstID).
			Int64("skipped", collisions).
			Msg("relationship uniqueness collisions skipped during merge")
	}

	aliases := unionAliases(dst.AliasVariants, src.CanonicalName, src.AliasVariants)
	if err := sess.UpdateSurvivor(ctx, dstID, aliases, now); err != nil {
		return err
	}

	if err := sess.DeleteEntity(ctx, srcID); err != nil {
		return err
	}

	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge tx: %w", err)
	}

	if err := s.audit.Record(ctx, audit.Entry{
		ActorID:    s.actorID,
		ActorType:  "service",
		Action:     "entity_merge",
		TargetType: "entity",
		TargetID:   dstID,
		Reason:     fmt.Sprintf("absorbed entity %d", srcID),
		Timestamp:  now,
	}); err != nil {
		s.logger.Warn().Err(err).Int64("dst_entity_id", dstID).Msg("audit record failed after merge")
	}

	return nil
}

// sqlMergeSession runs the merge against one database transaction.
type sqlMergeSession struct {
	tx db.Tx
}

func beginSQLMerge(pool *db.Pool) func(ctx context.Context) (mergeSession, error) {
	return func(ctx context.Context) (mergeSession, error) {
		tx, err := pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return nil, err
		}
		return &sqlMergeSession{tx: tx}, nil
	}
}

func (m *sqlMergeSession) LockEntity(ctx context.Context, entityID int64) (entityRow, error) {
	const q = `
SELECT entity_id, canonical_name, alias_variants, mention_total
FROM registry.entities
WHERE entity_id = $1
FOR UPDATE
`
	var row entityRow
	var aliasJSON []byte
	err := m.tx.QueryRow(ctx, q, entityID).Scan(
		&row.EntityID,
		&row.CanonicalName,
		&aliasJSON,
		&row.MentionTotal,
	)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return entityRow{}, fmt.Errorf("entity_id=%d: %w", entityID, ErrEntityMissing)
		}
		return entityRow{}, fmt.Errorf("lock entity_id=%d: %w", entityID, err)
	}

	if len(aliasJSON) > 0 {
		if err := json.Unmarshal(aliasJSON, &row.AliasVariants); err != nil {
			return entityRow{}, fmt.Errorf("decode alias variants entity_id=%d: %w", entityID, err)
		}
	}
	return row, nil
}

// MergeMentions re-points src mentions to dst. When both sides mention the
// same document the counts are summed into the dst row so the one-row-per-
// (entity, document) invariant holds.
func (m *sqlMergeSession) MergeMentions(ctx context.Context, srcID, dstID int64) error {
	const combineShared = `
UPDATE registry.mentions m
SET
	count = m.count + src.count,
	first_seen_at = LEAST(m.first_seen_at, src.first_seen_at),
	last_seen_at = GREATEST(m.last_seen_at, src.last_seen_at)
FROM registry.mentions src
WHERE m.entity_id = $2
  AND src.entity_id = $1
  AND src.document_id = m.document_id
`
	if _, err := m.tx.Exec(ctx, combineShared, srcID, dstID); err != nil {
		return fmt.Errorf("combine shared mentions src=%d dst=%d: %w", srcID, dstID, err)
	}

	const dropCombined = `
DELETE FROM registry.mentions src
WHERE src.entity_id = $1
  AND EXISTS (
	SELECT 1 FROM registry.mentions m
	WHERE m.entity_id = $2 AND m.document_id = src.document_id
  )
`
	if _, err := m.tx.Exec(ctx, dropCombined, srcID, dstID); err != nil {
		return fmt.Errorf("drop combined mentions src=%d dst=%d: %w", srcID, dstID, err)
	}

	const repoint = `
UPDATE registry.mentions SET entity_id = $2 WHERE entity_id = $1
`
	if _, err := m.tx.Exec(ctx, repoint, srcID, dstID); err != nil {
		return fmt.Errorf("repoint mentions src=%d dst=%d: %w", srcID, dstID, err)
	}
	return nil
}

// MergeRelationships re-points relationship edges from src to dst. Edges
// that would become self-loops are dropped; edges whose re-pointed triple
// already exists under dst are skipped (deleted) and counted, not fatal.
func (m *sqlMergeSession) MergeRelationships(ctx context.Context, srcID, dstID int64) (int64, error) {
	const dropSelfLoops = `
DELETE FROM registry.entity_relationships
WHERE (source_entity_id = $1 AND target_entity_id = $2)
   OR (source_entity_id = $2 AND target_entity_id = $1)
   OR (source_entity_id = $1 AND target_entity_id = $1)
`
	if _, err := m.tx.Exec(ctx, dropSelfLoops, srcID, dstID); err != nil {
		return 0, fmt.Errorf("drop self-loop relationships src=%d dst=%d: %w", srcID, dstID, err)
	}

	const repointSource = `
UPDATE registry.entity_relationships r
SET source_entity_id = $2
WHERE r.source_entity_id = $1
  AND NOT EXISTS (
	SELECT 1 FROM registry.entity_relationships other
	WHERE other.source_entity_id = $2
	  AND other.target_entity_id = r.target_entity_id
	  AND other.rel_type = r.rel_type
  )
`
	if _, err := m.tx.Exec(ctx, repointSource, srcID, dstID); err != nil {
		return 0, fmt.Errorf("repoint relationship sources src=%d dst=%d: %w", srcID, dstID, err)
	}

	const repointTarget = `
UPDATE registry.entity_relationships r
SET target_entity_id = $2
WHERE r.target_entity_id = $1
  AND NOT EXISTS (
	SELECT 1 FROM registry.entity_relationships other
	WHERE other.target_entity_id = $2
	  AND other.source_entity_id = r.source_entity_id
	  AND other.rel_type = r.rel_type
  )
`
	if _, err := m.tx.Exec(ctx, repointTarget, srcID, dstID); err != nil {
		return 0, fmt.Errorf("repoint relationship targets src=%d dst=%d: %w", srcID, dstID, err)
	}

	// Whatever still references src collided with an existing dst edge.
	const dropCollisions = `
DELETE FROM registry.entity_relationships
WHERE source_entity_id = $1 OR target_entity_id = $1
`
	tag, err := m.tx.Exec(ctx, dropCollisions, srcID)
	if err != nil {
		return 0, fmt.Errorf("drop colliding relationships src=%d: %w", srcID, err)
	}
	return tag.RowsAffected(), nil
}

func (m *sqlMergeSession) UpdateSurvivor(ctx context.Context, dstID int64, aliases []string, at time.Time) error {
	aliasJSON, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("marshal alias variants: %w", err)
	}

	const q = `
UPDATE registry.entities e
SET
	alias_variants = $2::jsonb,
	mention_total = COALESCE(agg.mention_total, 0),
	document_count = COALESCE(agg.document_count, 0),
	updated_at = $3
FROM (
	SELECT COALESCE(SUM(count), 0) AS mention_total, COUNT(*) AS document_count
	FROM registry.mentions
	WHERE entity_id = $1
) agg
WHERE e.entity_id = $1
`
	if _, err := m.tx.Exec(ctx, q, dstID, string(aliasJSON), at); err != nil {
		return fmt.Errorf("update merge survivor entity_id=%d: %w", dstID, err)
	}
	return nil
}

func (m *sqlMergeSession) DeleteEntity(ctx context.Context, entityID int64) error {
	if _, err := m.tx.Exec(ctx, `DELETE FROM registry.entities WHERE entity_id = $1`, entityID); err != nil {
		return fmt.Errorf("delete merge source entity_id=%d: %w", entityID, err)
	}
	return nil
}

func (m *sqlMergeSession) Commit(ctx context.Context) error {
	return m.tx.Commit(ctx)
}

func (m *sqlMergeSession) Rollback(ctx context.Context) error {
	return m.tx.Rollback(ctx)
}

func unionAliases(dstAliases []string, srcName string, srcAliases []string) []string {
	seen := make(map[string]struct{}, len(dstAliases)+len(srcAliases)+1)
	union := make([]string, 0, len(dstAliases)+len(srcAliases)+1)

	add := func(alias string) {
		if alias == "" {
			return
		}
		if _, exists := seen[alias]; exists {
			return
		}
		seen[alias] = struct{}{}
		union = append(union, alias)
	}

	for _, alias := range dstAliases {
		add(alias)
	}
	add(srcName)
	for _, alias := range srcAliases {
		add(alias)
	}
	return union
}
