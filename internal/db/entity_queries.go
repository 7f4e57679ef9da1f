package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EntityDetailHeader is the entity row as served to read surfaces.
type EntityDetailHeader struct {
	EntityID      int64     `json:"entity_id"`
	CanonicalName string    `json:"canonical_name"`
	AliasVariants []string  `json:"alias_variants"`
	MentionTotal  int64     `json:"mention_total"`
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntityMentionRow is one mention row under an entity detail view.
type EntityMentionRow struct {
	DocumentID  int64     `json:"document_id"`
	Count       int       `json:"count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// EntityDetail is one entity plus its per-document mention rows.
type EntityDetail struct {
	Entity   EntityDetailHeader `json:"entity"`
	Mentions []EntityMentionRow `json:"mentions"`
}

// GetEntityDetail returns one entity and its mention rows, most mentioned
// documents first. Returns ErrNoRows when the entity does not exist.
func (p *Pool) GetEntityDetail(ctx context.Context, entityID int64) (*EntityDetail, error) {
	if entityID <= 0 {
		return nil, fmt.Errorf("entity id must be positive")
	}

	const entityQuery = `
SELECT
	e.entity_id,
	e.canonical_name,
	e.alias_variants,
	e.mention_total,
	e.document_count,
	e.created_at,
	e.updated_at
FROM registry.entities e
WHERE e.entity_id = $1
`

	var header EntityDetailHeader
	var aliasJSON []byte
	if err := p.QueryRow(ctx, entityQuery, entityID).Scan(
		&header.EntityID,
		&header.CanonicalName,
		&aliasJSON,
		&header.MentionTotal,
		&header.DocumentCount,
		&header.CreatedAt,
		&header.UpdatedAt,
	); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query entity detail header: %w", err)
	}

	header.AliasVariants = []string{}
	if len(aliasJSON) > 0 {
		if err := json.Unmarshal(aliasJSON, &header.AliasVariants); err != nil {
			return nil, fmt.Errorf("decode alias variants entity_id=%d: %w", entityID, err)
		}
	}

	const mentionsQuery = `
SELECT
	m.document_id,
	m.count,
	m.first_seen_at,
	m.last_seen_at
FROM registry.mentions m
WHERE m.entity_id = $1
ORDER BY m.count DESC, m.document_id ASC
`

	rows, err := p.Query(ctx, mentionsQuery, entityID)
	if err != nil {
		return nil, fmt.Errorf("query entity mentions: %w", err)
	}
	defer rows.Close()

	mentions := make([]EntityMentionRow, 0, header.DocumentCount)
	for rows.Next() {
		var mention EntityMentionRow
		if err := rows.Scan(
			&mention.DocumentID,
			&mention.Count,
			&mention.FirstSeenAt,
			&mention.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity mention: %w", err)
		}
		mentions = append(mentions, mention)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity mentions: %w", err)
	}

	return &EntityDetail{
		Entity:   header,
		Mentions: mentions,
	}, nil
}

// EntitySummary is one row of an entity listing.
type EntitySummary struct {
	EntityID      int64     `json:"entity_id"`
	CanonicalName string    `json:"canonical_name"`
	MentionTotal  int64     `json:"mention_total"`
	DocumentCount int       `json:"document_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListEntities lists entities by mention volume, optionally filtered by a
// case-insensitive name fragment.
func (p *Pool) ListEntities(ctx context.Context, nameQuery string, limit int) ([]EntitySummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	search := "%" + nameQuery + "%"

	const q = `
SELECT
	e.entity_id,
	e.canonical_name,
	e.mention_total,
	e.document_count,
	e.updated_at
FROM registry.entities e
WHERE ($1 = '%%' OR e.canonical_name ILIKE $1)
ORDER BY e.mention_total DESC, e.entity_id ASC
LIMIT $2
`

	rows, err := p.Query(ctx, q, search, limit)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	items := make([]EntitySummary, 0, limit)
	for rows.Next() {
		var item EntitySummary
		if err := rows.Scan(
			&item.EntityID,
			&item.CanonicalName,
			&item.MentionTotal,
			&item.DocumentCount,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity summaries: %w", err)
	}
	return items, nil
}
