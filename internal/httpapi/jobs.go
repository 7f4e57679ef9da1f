package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/registry/internal/queue"
	jobschema "horse.fit/registry/schema"
)

type createJobRequest struct {
	StepName    string          `json:"step_name"`
	TargetType  string          `json:"target_type"`
	TargetID    *int64          `json:"target_id,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
}

type jobItem struct {
	JobID       int64           `json:"job_id"`
	RunID       string          `json:"run_id"`
	StepName    string          `json:"step_name"`
	TargetType  string          `json:"target_type"`
	TargetID    *int64          `json:"target_id,omitempty"`
	Priority    int             `json:"priority"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type jobAttemptItem struct {
	AttemptNumber int       `json:"attempt_number"`
	Status        string    `json:"status"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toJobItem(job queue.Job) jobItem {
	return jobItem{
		JobID:       job.JobID,
		RunID:       job.RunID,
		StepName:    job.StepName,
		TargetType:  job.TargetType,
		TargetID:    job.TargetID,
		Priority:    job.Priority,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LockedBy:    job.LockedBy,
		LockedAt:    job.LockedAt,
		LastError:   job.LastError,
		Params:      job.Params,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

func (s *Server) handleListJobs(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 100, 1, 500)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	filter := queue.ListFilter{
		Status:     queue.Status(strings.TrimSpace(strings.ToLower(c.QueryParam("status")))),
		StepName:   strings.TrimSpace(c.QueryParam("step")),
		TargetType: strings.TrimSpace(c.QueryParam("target_type")),
		Limit:      limit,
	}

	jobs, err := s.store.List(c.Request().Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs failed")
		return internalError(c, "Failed to load jobs")
	}

	items := make([]jobItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toJobItem(job))
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleCreateJob(c echo.Context) error {
	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	fieldErrors := map[string]string{}
	stepName := strings.TrimSpace(req.StepName)
	if stepName == "" {
		fieldErrors["step_name"] = "is required"
	} else if !queue.KnownStep(stepName) {
		fieldErrors["step_name"] = "is not a known step"
	}
	if strings.TrimSpace(req.TargetType) == "" {
		fieldErrors["target_type"] = "is required"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	// Reject malformed params at submission time so workers never lease a
	// job they cannot parse.
	switch stepName {
	case queue.StepEntityResolution:
		if _, err := jobschema.ValidateResolutionParams(req.Params); err != nil {
			return failValidation(c, map[string]string{"params": err.Error()})
		}
	case queue.StepMentionBackfill:
		if _, err := jobschema.ValidateAggregationParams(req.Params); err != nil {
			return failValidation(c, map[string]string{"params": err.Error()})
		}
	}

	created, err := s.store.Create(c.Request().Context(), queue.NewJob{
		RunID:       req.RunID,
		StepName:    stepName,
		TargetType:  strings.TrimSpace(req.TargetType),
		TargetID:    req.TargetID,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
		Params:      req.Params,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("step", stepName).Msg("create job failed")
		return internalError(c, "Failed to create job")
	}

	return successWithStatus(c, http.StatusCreated, toJobItem(created))
}

func (s *Server) handleJobDetail(c echo.Context) error {
	jobID, err := strconv.ParseInt(strings.TrimSpace(c.Param("job_id")), 10, 64)
	if err != nil || jobID <= 0 {
		return failValidation(c, map[string]string{"job_id": "must be a positive integer"})
	}

	job, err := s.store.Get(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("get job failed")
		return internalError(c, "Failed to load job")
	}

	attempts, err := s.store.Attempts(c.Request().Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("list attempts failed")
		return internalError(c, "Failed to load job attempts")
	}

	attemptItems := make([]jobAttemptItem, 0, len(attempts))
	for _, attempt := range attempts {
		attemptItems = append(attemptItems, jobAttemptItem{
			AttemptNumber: attempt.AttemptNumber,
			Status:        string(attempt.Status),
			ErrorMessage:  attempt.ErrorMessage,
			CreatedAt:     attempt.CreatedAt,
		})
	}

	return success(c, map[string]any{
		"job":      toJobItem(job),
		"attempts": attemptItems,
	})
}

func (s *Server) handleCancelJob(c echo.Context) error {
	jobID, err := strconv.ParseInt(strings.TrimSpace(c.Param("job_id")), 10, 64)
	if err != nil || jobID <= 0 {
		return failValidation(c, map[string]string{"job_id": "must be a positive integer"})
	}

	if err := s.store.Cancel(c.Request().Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			return failNotFound(c, "Job not found")
		}
		if errors.Is(err, queue.ErrCannotCancel) {
			return failConflict(c, err.Error())
		}
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("cancel job failed")
		return internalError(c, "Failed to cancel job")
	}

	job, err := s.store.Get(c.Request().Context(), jobID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", jobID).Msg("get job after cancel failed")
		return internalError(c, "Failed to load job")
	}
	return success(c, toJobItem(job))
}
