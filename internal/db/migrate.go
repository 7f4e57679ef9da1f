package db

import (
	"context"
	"fmt"
)

// EntitySearchIndexName is the full-text index over entity canonical names.
// Bulk aggregation runs drop and rebuild it around their write phase.
const EntitySearchIndexName = "registry.idx_entities_name_search"

// EntitySearchIndexDDL recreates the entity search index.
const EntitySearchIndexDDL = `CREATE INDEX IF NOT EXISTS idx_entities_name_search ON registry.entities USING GIN (to_tsvector('simple', canonical_name))`

// migrationStep is a structural change applied at most once, tracked in
// registry.schema_versions rather than detected by error-string matching.
type migrationStep struct {
	version int
	name    string
	sql     string
}

func migrationSteps() []migrationStep {
	return []migrationStep{
		{
			version: 1,
			name:    "entity-search-index",
			sql:     EntitySearchIndexDDL,
		},
		{
			version: 2,
			name:    "job-eligibility-index",
			sql: `CREATE INDEX IF NOT EXISTS idx_jobs_eligibility
ON registry.processing_jobs (status, priority DESC, created_at ASC)`,
		},
		{
			version: 3,
			name:    "merge-log-entity-index",
			sql: `CREATE INDEX IF NOT EXISTS idx_merge_log_entities
ON registry.merge_log (src_entity_id, dst_entity_id)`,
		},
		{
			version: 4,
			name:    "mention-document-index",
			sql: `CREATE INDEX IF NOT EXISTS idx_mentions_document
ON registry.mentions (document_id)`,
		},
	}
}

func (p *Pool) migrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	gdb := p.gdb.WithContext(ctx)
	if err := gdb.Exec(`CREATE SCHEMA IF NOT EXISTS registry`).Error; err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	if err := gdb.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("migrate schema_versions: %w", err)
	}
	if err := gdb.AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	for _, step := range migrationSteps() {
		applied, err := p.schemaVersionApplied(ctx, step.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := gdb.Exec(step.sql).Error; err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", step.version, step.name, err)
		}
		if err := gdb.Exec(
			`INSERT INTO registry.schema_versions (version, applied_at) VALUES (?, now()) ON CONFLICT (version) DO NOTHING`,
			step.version,
		).Error; err != nil {
			return fmt.Errorf("record migration %d (%s): %w", step.version, step.name, err)
		}
	}

	return nil
}

func (p *Pool) schemaVersionApplied(ctx context.Context, version int) (bool, error) {
	var count int64
	err := p.gdb.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM registry.schema_versions WHERE version = ?`, version).
		Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("check schema version %d: %w", version, err)
	}
	return count > 0, nil
}
