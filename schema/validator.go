// Package jobschema validates processing job parameters against embedded
// JSON Schemas before anything is enqueued. Unknown keys are rejected so a
// typo in a parameter name fails at submission, not mid-run.
package jobschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed resolution_params.schema.json
var resolutionSchemaJSON string

//go:embed aggregation_params.schema.json
var aggregationSchemaJSON string

// ResolutionParams configures an entity_resolution job.
type ResolutionParams struct {
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	DryRun              bool     `json:"dry_run,omitempty"`
	Apply               bool     `json:"apply,omitempty"`
}

// AggregationParams configures a mention_backfill job. Both fields empty
// means the full corpus.
type AggregationParams struct {
	SinceTimestamp *string `json:"since_timestamp,omitempty"`
	DocumentIDs    []int64 `json:"document_ids,omitempty"`
}

var (
	compileOnce        sync.Once
	resolutionSchema   *jsonschema.Schema
	aggregationSchema  *jsonschema.Schema
	compiledSchemasErr error
)

// ValidateResolutionParams checks and decodes entity resolution parameters.
// Empty input is valid and yields defaults.
func ValidateResolutionParams(payload json.RawMessage) (*ResolutionParams, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &ResolutionParams{}, nil
	}

	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode params JSON: %w", err)
	}

	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := resolutionSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var params ResolutionParams
	if err := remarshal(value, &params); err != nil {
		return nil, err
	}
	if params.SimilarityThreshold != nil {
		t := *params.SimilarityThreshold
		if t <= 0 || t > 1 {
			return nil, fmt.Errorf("similarity_threshold must be in (0, 1], got %f", t)
		}
	}
	return &params, nil
}

// ValidateAggregationParams checks and decodes mention aggregation
// parameters. Empty input is valid and means a full corpus run.
func ValidateAggregationParams(payload json.RawMessage) (*AggregationParams, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return &AggregationParams{}, nil
	}

	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode params JSON: %w", err)
	}

	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if err := aggregationSchema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var params AggregationParams
	if err := remarshal(value, &params); err != nil {
		return nil, err
	}
	if params.SinceTimestamp != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*params.SinceTimestamp)); err != nil {
			return nil, fmt.Errorf("since_timestamp must be RFC3339: %w", err)
		}
	}
	if params.SinceTimestamp != nil && len(params.DocumentIDs) > 0 {
		return nil, fmt.Errorf("since_timestamp and document_ids are mutually exclusive")
	}
	return &params, nil
}

// Since parses the validated since_timestamp, or returns nil for a full run.
func (p *AggregationParams) Since() *time.Time {
	if p == nil || p.SinceTimestamp == nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*p.SinceTimestamp))
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

func loadSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		compile := func(name, source string) (*jsonschema.Schema, error) {
			if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
				return nil, fmt.Errorf("add schema resource %s: %w", name, err)
			}
			schema, err := compiler.Compile(name)
			if err != nil {
				return nil, fmt.Errorf("compile schema %s: %w", name, err)
			}
			return schema, nil
		}

		resolutionSchema, compiledSchemasErr = compile("resolution_params.schema.json", resolutionSchemaJSON)
		if compiledSchemasErr != nil {
			return
		}
		aggregationSchema, compiledSchemasErr = compile("aggregation_params.schema.json", aggregationSchemaJSON)
	})
	return compiledSchemasErr
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("params payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("params payload contains trailing content")
	}
	return value, nil
}

func remarshal(value any, dest any) error {
	normalized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("normalize params JSON: %w", err)
	}
	if err := json.Unmarshal(normalized, dest); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	return nil
}
