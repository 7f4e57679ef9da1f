// Package audit appends access-audit entries for every mutating resolution or
// aggregation action. The log is append-only; rows are never updated or
// deleted.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"horse.fit/registry/internal/db"
	"horse.fit/registry/internal/globaltime"
)

// Entry is one audited action against an entity, document, or job.
type Entry struct {
	ActorID    string
	ActorType  string
	Action     string
	TargetType string
	TargetID   int64
	Reason     string
	Timestamp  time.Time
}

// Recorder persists audit entries. The dashboard/audit tooling that reads
// them lives outside this service.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// DBRecorder appends entries to registry.access_audit.
type DBRecorder struct {
	pool *db.Pool
}

func NewDBRecorder(pool *db.Pool) *DBRecorder {
	return &DBRecorder{pool: pool}
}

func (r *DBRecorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("audit recorder is not initialized")
	}
	if strings.TrimSpace(entry.ActorID) == "" {
		return fmt.Errorf("audit actor id is required")
	}
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("audit action is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = globaltime.UTC()
	}

	const q = `
INSERT INTO registry.access_audit (actor_id, actor_type, action, target_type, target_id, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := r.pool.Exec(ctx, q,
		entry.ActorID,
		entry.ActorType,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Reason,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// NopRecorder discards entries; used in tests and dry runs.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }
