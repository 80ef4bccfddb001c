package jobs

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
)

// GenerationWorkflowName is the Temporal workflow registered by the
// worker; dispatch is by name to keep this package free of workflow
// imports.
const GenerationWorkflowName = "GenerationWorkflow"

// GenerationRequest is everything the background worker needs to run
// one generation job.
type GenerationRequest struct {
	JobID            string                  `json:"job_id"`
	EntityType       models.EntityType       `json:"entity_type"`
	Slug             string                  `json:"slug"`
	Locale           string                  `json:"locale"`
	ContextTag       string                  `json:"context_tag,omitempty"`
	ExistingEntityID *int64                  `json:"existing_entity_id,omitempty"`
	Reference        *models.CanonicalRecord `json:"reference,omitempty"`
}

// Dispatcher hands a generation job to the background worker.
// Fire-and-forget: the retrieval path never waits on generation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req GenerationRequest) error
}

// TemporalDispatcher starts the generation workflow on a Temporal task
// queue.
type TemporalDispatcher struct {
	client    client.Client
	taskQueue string
	logger    *zap.Logger
}

// NewTemporalDispatcher creates a dispatcher for the given task queue.
func NewTemporalDispatcher(c client.Client, taskQueue string, logger *zap.Logger) *TemporalDispatcher {
	return &TemporalDispatcher{client: c, taskQueue: taskQueue, logger: logger}
}

// Dispatch starts the workflow. The workflow ID embeds the job id so
// duplicate dispatches of the same job collapse on the Temporal side
// as well.
func (d *TemporalDispatcher) Dispatch(ctx context.Context, req GenerationRequest) error {
	opts := client.StartWorkflowOptions{
		ID:        "generate-" + req.JobID,
		TaskQueue: d.taskQueue,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, GenerationWorkflowName, req)
	if err != nil {
		return fmt.Errorf("dispatch generation workflow: %w", err)
	}
	d.logger.Info("Generation job dispatched",
		zap.String("job_id", req.JobID),
		zap.String("slug", req.Slug),
		zap.String("entity_type", string(req.EntityType)),
		zap.String("locale", req.Locale),
	)
	return nil
}
