package jobschema

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidateResolutionParams(t *testing.T) {
	t.Parallel()

	params, err := ValidateResolutionParams(json.RawMessage(`{"similarity_threshold": 0.92, "dry_run": true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.SimilarityThreshold == nil || *params.SimilarityThreshold != 0.92 {
		t.Fatalf("unexpected threshold: %v", params.SimilarityThreshold)
	}
	if !params.DryRun {
		t.Fatal("expected dry_run to decode")
	}
}

func TestValidateResolutionParams_Empty(t *testing.T) {
	t.Parallel()

	params, err := ValidateResolutionParams(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.SimilarityThreshold != nil || params.DryRun || params.Apply {
		t.Fatalf("expected zero-value params, got %+v", params)
	}
}

func TestValidateResolutionParams_RejectsUnknownKey(t *testing.T) {
	t.Parallel()

	if _, err := ValidateResolutionParams(json.RawMessage(`{"similarityThreshold": 0.9}`)); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateResolutionParams_RejectsOutOfRangeThreshold(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`{"similarity_threshold": 0}`,
		`{"similarity_threshold": 1.5}`,
		`{"similarity_threshold": -0.1}`,
	} {
		if _, err := ValidateResolutionParams(json.RawMessage(payload)); err == nil {
			t.Fatalf("expected %s to be rejected", payload)
		}
	}
}

func TestValidateAggregationParams_Since(t *testing.T) {
	t.Parallel()

	params, err := ValidateAggregationParams(json.RawMessage(`{"since_timestamp": "2026-02-01T09:00:00Z"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	since := params.Since()
	if since == nil || !since.Equal(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected since: %v", since)
	}
}

func TestValidateAggregationParams_DocumentIDs(t *testing.T) {
	t.Parallel()

	params, err := ValidateAggregationParams(json.RawMessage(`{"document_ids": [4, 7]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.DocumentIDs) != 2 || params.DocumentIDs[0] != 4 || params.DocumentIDs[1] != 7 {
		t.Fatalf("unexpected document ids: %v", params.DocumentIDs)
	}
}

func TestValidateAggregationParams_RejectsBothScopes(t *testing.T) {
	t.Parallel()

	payload := `{"since_timestamp": "2026-02-01T09:00:00Z", "document_ids": [4]}`
	if _, err := ValidateAggregationParams(json.RawMessage(payload)); err == nil {
		t.Fatal("expected combined since and document scope to be rejected")
	}
}

func TestValidateAggregationParams_RejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	if _, err := ValidateAggregationParams(json.RawMessage(`{"since_timestamp": "yesterday"}`)); err == nil {
		t.Fatal("expected a non-RFC3339 timestamp to be rejected")
	}
}

func TestValidateAggregationParams_RejectsTrailingContent(t *testing.T) {
	t.Parallel()

	if _, err := ValidateAggregationParams(json.RawMessage(`{} {}`)); err == nil {
		t.Fatal("expected trailing content to be rejected")
	}
}
