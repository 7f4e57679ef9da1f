package db

import (
	"context"
	"fmt"
	"time"
)

// MergeLogRow is one merge-log entry as served to read surfaces.
type MergeLogRow struct {
	MergeLogID  int64     `json:"merge_log_id"`
	SrcEntityID int64     `json:"src_entity_id"`
	DstEntityID int64     `json:"dst_entity_id"`
	Score       float64   `json:"score"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListMergeLog lists merge-log entries newest first. A non-nil entityID
// restricts to entries that touch that entity on either side.
func (p *Pool) ListMergeLog(ctx context.Context, entityID *int64, limit int) ([]MergeLogRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `
SELECT
	ml.merge_log_id,
	ml.src_entity_id,
	ml.dst_entity_id,
	ml.score,
	ml.reason,
	ml.created_at
FROM registry.merge_log ml
WHERE ($1::bigint IS NULL OR ml.src_entity_id = $1 OR ml.dst_entity_id = $1)
ORDER BY ml.created_at DESC, ml.merge_log_id DESC
LIMIT $2
`

	rows, err := p.Query(ctx, q, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list merge log: %w", err)
	}
	defer rows.Close()

	items := make([]MergeLogRow, 0, limit)
	for rows.Next() {
		var item MergeLogRow
		if err := rows.Scan(
			&item.MergeLogID,
			&item.SrcEntityID,
			&item.DstEntityID,
			&item.Score,
			&item.Reason,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan merge log row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merge log rows: %w", err)
	}
	return items, nil
}
