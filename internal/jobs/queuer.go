package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/metrics"
	"github.com/filmatlas/filmatlas/internal/models"
)

// QueueResult describes the job a queue attempt resolved to: either a
// freshly dispatched one or the job already in flight for the same
// fingerprint.
type QueueResult struct {
	JobID            string   `json:"job_id"`
	Status           string   `json:"status"`
	Message          string   `json:"message"`
	Slug             string   `json:"slug"`
	Confidence       *float64 `json:"confidence,omitempty"`
	ConfidenceLevel  string   `json:"confidence_level"`
	Locale           string   `json:"locale"`
	ContextTag       string   `json:"context_tag,omitempty"`
	ExistingEntityID *int64   `json:"existing_id,omitempty"`
	AlreadyQueued    bool     `json:"-"`
}

// Queuer turns "this slug needs generation" into exactly one dispatched
// job: it pairs slot acquisition with status initialization and
// dispatch, and reports the in-flight job on contention.
type Queuer struct {
	slots      *genslot.Manager
	status     *StatusStore
	dispatcher Dispatcher
	logger     *zap.Logger
	newJobID   func() string
}

// NewQueuer wires a queuer from its collaborators.
func NewQueuer(slots *genslot.Manager, status *StatusStore, dispatcher Dispatcher, logger *zap.Logger) *Queuer {
	return &Queuer{
		slots:      slots,
		status:     status,
		dispatcher: dispatcher,
		logger:     logger,
		newJobID:   func() string { return uuid.New().String() },
	}
}

// Queue acquires the generation slot for fp and dispatches a job. When
// another job already holds the slot, the result describes that job
// instead and nothing is dispatched. The slot is authoritative even
// before its owner writes a status record; only a slot that vanishes
// between the lost acquisition and the owner read is retried.
func (q *Queuer) Queue(ctx context.Context, fp genslot.Fingerprint, confidence *float64, existingEntityID *int64, ref *models.CanonicalRecord) (QueueResult, error) {
	jobID := q.newJobID()

	won, err := q.slots.Acquire(ctx, fp, jobID)
	if err != nil {
		return QueueResult{}, err
	}

	if !won {
		res, retry, err := q.resolveContention(ctx, fp, confidence, existingEntityID)
		if err != nil {
			return QueueResult{}, err
		}
		if !retry {
			return res, nil
		}
		// The slot is gone; this acquisition should win now. If it
		// still does not, dispatch anyway so the caller always gets a
		// job id (the slot is a cost guard, not the source of truth).
		won, err = q.slots.Acquire(ctx, fp, jobID)
		if err != nil {
			return QueueResult{}, err
		}
		if !won {
			q.logger.Warn("Slot acquisition failed after stale-slot retry, dispatching anyway",
				zap.String("slug", fp.Slug),
				zap.String("job_id", jobID),
			)
		}
	}

	return q.dispatch(ctx, fp, jobID, confidence, existingEntityID, ref)
}

// resolveContention inspects the slot owner. A held slot always
// resolves to the owner's job: a missing status record just means the
// owner sits in the window between its Acquire and its status write,
// or that the record expired while the job still runs. Dead owners are
// reclaimed by the slot TTL, never by contenders. Returns retry=true
// only when the slot vanished after the lost acquisition.
func (q *Queuer) resolveContention(ctx context.Context, fp genslot.Fingerprint, confidence *float64, existingEntityID *int64) (QueueResult, bool, error) {
	owner, err := q.slots.OwnerJobID(ctx, fp)
	if err != nil {
		return QueueResult{}, false, err
	}
	if owner == "" {
		return QueueResult{}, true, nil
	}

	rec, err := q.status.Get(ctx, owner)
	if err != nil {
		return QueueResult{}, false, err
	}
	if rec == nil {
		rec = &Record{
			JobID:      owner,
			Status:     StatusPending,
			EntityType: fp.EntityType,
			Slug:       fp.Slug,
			Confidence: confidence,
			Locale:     fp.Locale,
			ContextTag: fp.ContextTag,
		}
	}
	q.logger.Info("Reusing in-flight generation job",
		zap.String("slug", fp.Slug),
		zap.String("job_id", owner),
	)
	return existingJobResult(fp, rec, existingEntityID), false, nil
}

func (q *Queuer) dispatch(ctx context.Context, fp genslot.Fingerprint, jobID string, confidence *float64, existingEntityID *int64, ref *models.CanonicalRecord) (QueueResult, error) {
	if err := q.status.Initialize(ctx, Record{
		JobID:      jobID,
		EntityType: fp.EntityType,
		Slug:       fp.Slug,
		Confidence: confidence,
		Locale:     fp.Locale,
		ContextTag: fp.ContextTag,
	}); err != nil {
		return QueueResult{}, err
	}

	if err := q.dispatcher.Dispatch(ctx, GenerationRequest{
		JobID:            jobID,
		EntityType:       fp.EntityType,
		Slug:             fp.Slug,
		Locale:           fp.Locale,
		ContextTag:       fp.ContextTag,
		ExistingEntityID: existingEntityID,
		Reference:        ref,
	}); err != nil {
		return QueueResult{}, fmt.Errorf("queue generation for %s: %w", fp.Slug, err)
	}
	metrics.JobsDispatched.WithLabelValues(string(fp.EntityType)).Inc()

	return QueueResult{
		JobID:            jobID,
		Status:           StatusPending,
		Message:          "Generation queued for slug",
		Slug:             fp.Slug,
		Confidence:       confidence,
		ConfidenceLevel:  ConfidenceLabel(confidence),
		Locale:           fp.Locale,
		ContextTag:       fp.ContextTag,
		ExistingEntityID: existingEntityID,
	}, nil
}

func existingJobResult(fp genslot.Fingerprint, rec *Record, existingEntityID *int64) QueueResult {
	locale := rec.Locale
	if locale == "" {
		locale = fp.Locale
	}
	return QueueResult{
		JobID:            rec.JobID,
		Status:           rec.Status,
		Message:          "Generation already queued for slug",
		Slug:             fp.Slug,
		Confidence:       rec.Confidence,
		ConfidenceLevel:  ConfidenceLabel(rec.Confidence),
		Locale:           locale,
		ContextTag:       rec.ContextTag,
		ExistingEntityID: existingEntityID,
		AlreadyQueued:    true,
	}
}

// ConfidenceLabel buckets a plausibility confidence for API consumers.
func ConfidenceLabel(confidence *float64) string {
	if confidence == nil {
		return "unknown"
	}
	switch {
	case *confidence >= 0.9:
		return "high"
	case *confidence >= 0.7:
		return "medium"
	case *confidence >= 0.5:
		return "low"
	default:
		return "very_low"
	}
}
