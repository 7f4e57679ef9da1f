package db

import (
	"encoding/json"
	"time"
)

// Entity maps registry.entities. mention_total and document_count are derived
// aggregates recomputed from mention rows, never incremented in place.
type Entity struct {
	EntityID      int64           `gorm:"column:entity_id;primaryKey;autoIncrement"`
	CanonicalName string          `gorm:"column:canonical_name;type:text;not null"`
	AliasVariants json.RawMessage `gorm:"column:alias_variants;type:jsonb;not null;default:'[]'"`
	MentionTotal  int64           `gorm:"column:mention_total;type:bigint;not null;default:0"`
	DocumentCount int             `gorm:"column:document_count;type:integer;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Entity) TableName() string { return "registry.entities" }

// Document maps registry.documents. Owned by the ingestion collaborator;
// read-only to this service.
type Document struct {
	DocumentID  int64     `gorm:"column:document_id;primaryKey;autoIncrement"`
	Content     string    `gorm:"column:content;type:text;not null;default:''"`
	ContentType string    `gorm:"column:content_type;type:text;not null;default:'text/plain'"`
	Language    *string   `gorm:"column:language;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Document) TableName() string { return "registry.documents" }

// Mention maps registry.mentions. At most one row per (entity, document);
// aggregation runs upsert, never append.
type Mention struct {
	EntityID    int64     `gorm:"column:entity_id;type:bigint;primaryKey"`
	DocumentID  int64     `gorm:"column:document_id;type:bigint;primaryKey"`
	Count       int       `gorm:"column:count;type:integer;not null"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;type:timestamptz;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;type:timestamptz;not null"`
}

func (Mention) TableName() string { return "registry.mentions" }

// EntityRelationship maps registry.entity_relationships.
type EntityRelationship struct {
	RelationshipID int64     `gorm:"column:relationship_id;primaryKey;autoIncrement"`
	SourceEntityID int64     `gorm:"column:source_entity_id;type:bigint;not null;uniqueIndex:ux_relationship_triple,priority:1"`
	TargetEntityID int64     `gorm:"column:target_entity_id;type:bigint;not null;uniqueIndex:ux_relationship_triple,priority:2"`
	RelType        string    `gorm:"column:rel_type;type:text;not null;uniqueIndex:ux_relationship_triple,priority:3"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (EntityRelationship) TableName() string { return "registry.entity_relationships" }

// MergeLogEntry maps registry.merge_log. Append-only forensic record of every
// merge candidate, applied or not.
type MergeLogEntry struct {
	MergeLogID  int64     `gorm:"column:merge_log_id;primaryKey;autoIncrement"`
	SrcEntityID int64     `gorm:"column:src_entity_id;type:bigint;not null"`
	DstEntityID int64     `gorm:"column:dst_entity_id;type:bigint;not null"`
	Score       float64   `gorm:"column:score;type:double precision;not null"`
	Reason      string    `gorm:"column:reason;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (MergeLogEntry) TableName() string { return "registry.merge_log" }

// ProcessingJob maps registry.processing_jobs. Mutated only through the lease
// protocol; rows are never deleted.
type ProcessingJob struct {
	JobID       int64           `gorm:"column:job_id;primaryKey;autoIncrement"`
	RunID       string          `gorm:"column:run_id;type:uuid;not null"`
	StepName    string          `gorm:"column:step_name;type:text;not null"`
	TargetType  string          `gorm:"column:target_type;type:text;not null"`
	TargetID    *int64          `gorm:"column:target_id;type:bigint"`
	Priority    int             `gorm:"column:priority;type:integer;not null;default:0"`
	Status      string          `gorm:"column:status;type:text;not null;default:'queued'"`
	Attempts    int             `gorm:"column:attempts;type:integer;not null;default:0"`
	MaxAttempts int             `gorm:"column:max_attempts;type:integer;not null;default:3"`
	LockedBy    *string         `gorm:"column:locked_by;type:text"`
	LockedAt    *time.Time      `gorm:"column:locked_at;type:timestamptz"`
	LastError   *string         `gorm:"column:last_error;type:text"`
	Params      json.RawMessage `gorm:"column:params;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ProcessingJob) TableName() string { return "registry.processing_jobs" }

// JobAttempt maps registry.job_attempts. One immutable row per status change.
type JobAttempt struct {
	JobID         int64     `gorm:"column:job_id;type:bigint;primaryKey"`
	AttemptNumber int       `gorm:"column:attempt_number;type:integer;primaryKey"`
	Status        string    `gorm:"column:status;type:text;not null"`
	ErrorMessage  *string   `gorm:"column:error_message;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (JobAttempt) TableName() string { return "registry.job_attempts" }

// AccessAuditEntry maps registry.access_audit. Append-only.
type AccessAuditEntry struct {
	AuditID    int64     `gorm:"column:audit_id;primaryKey;autoIncrement"`
	ActorID    string    `gorm:"column:actor_id;type:text;not null"`
	ActorType  string    `gorm:"column:actor_type;type:text;not null"`
	Action     string    `gorm:"column:action;type:text;not null"`
	TargetType string    `gorm:"column:target_type;type:text;not null"`
	TargetID   int64     `gorm:"column:target_id;type:bigint;not null"`
	Reason     string    `gorm:"column:reason;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AccessAuditEntry) TableName() string { return "registry.access_audit" }

// SchemaVersion maps registry.schema_versions.
type SchemaVersion struct {
	Version   int       `gorm:"column:version;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at;type:timestamptz;not null;default:now()"`
}

func (SchemaVersion) TableName() string { return "registry.schema_versions" }

func autoMigrateModels() []any {
	return []any{
		&Entity{},
		&Document{},
		&Mention{},
		&EntityRelationship{},
		&MergeLogEntry{},
		&ProcessingJob{},
		&JobAttempt{},
		&AccessAuditEntry{},
	}
}
