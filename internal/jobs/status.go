// Package jobs tracks background generation jobs: their cached status
// records, dispatch to the worker, and the queueing flow that pairs
// slot acquisition with dispatch.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/metrics"
	"github.com/filmatlas/filmatlas/internal/models"
)

// Status values of a generation job.
const (
	StatusPending = "PENDING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Record is the cached state of one generation job. It lives under a
// short TTL and is correlated with the generation slot by job id; the
// two have independent lifecycles.
type Record struct {
	JobID      string            `json:"job_id"`
	Status     string            `json:"status"`
	EntityType models.EntityType `json:"entity"`
	Slug       string            `json:"slug"`
	Confidence *float64          `json:"confidence,omitempty"`
	Locale     string            `json:"locale,omitempty"`
	ContextTag string            `json:"context_tag,omitempty"`
	EntityID   *int64            `json:"entity_id,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// StatusStore keeps job records in the shared cache.
type StatusStore struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatusStore creates a store with the given record TTL.
func NewStatusStore(c *cache.Cache, ttl time.Duration, logger *zap.Logger) *StatusStore {
	return &StatusStore{cache: c, ttl: ttl, logger: logger}
}

func statusKey(jobID string) string {
	return "ai_job:" + jobID
}

// Initialize writes the initial PENDING record for a job.
func (s *StatusStore) Initialize(ctx context.Context, rec Record) error {
	rec.Status = StatusPending
	return s.put(ctx, rec)
}

// Get returns the record for jobID, or nil when none exists (expired
// or never created).
func (s *StatusStore) Get(ctx context.Context, jobID string) (*Record, error) {
	raw, found, err := s.cache.Get(ctx, statusKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	if !found {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode job status %s: %w", jobID, err)
	}
	return &rec, nil
}

// MarkDone finalizes a job as completed with the produced entity id.
// A missing record (expired) is a no-op.
func (s *StatusStore) MarkDone(ctx context.Context, jobID string, entityID int64) error {
	rec, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Status = StatusDone
	rec.EntityID = &entityID
	metrics.JobsCompleted.WithLabelValues(string(rec.EntityType), StatusDone).Inc()
	return s.put(ctx, *rec)
}

// MarkFailed finalizes a job as failed with an error message.
func (s *StatusStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	rec, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Status = StatusFailed
	rec.Error = errMsg
	metrics.JobsCompleted.WithLabelValues(string(rec.EntityType), StatusFailed).Inc()
	return s.put(ctx, *rec)
}

func (s *StatusStore) put(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode job status: %w", err)
	}
	if err := s.cache.Set(ctx, statusKey(rec.JobID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("store job status: %w", err)
	}
	return nil
}
