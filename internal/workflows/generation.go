// Package workflows defines the Temporal generation workflow: verify,
// generate, validate, persist, finalize.
package workflows

import (
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/filmatlas/filmatlas/internal/activities"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/safety"
)

// GenerationWorkflow runs one generation job end to end. It is
// registered under jobs.GenerationWorkflowName; the retrieval side
// dispatches it by that name and never imports this package.
//
// Every terminal path runs FinalizeJob so the job status is recorded
// and the generation slot released even when a step fails.
func GenerationWorkflow(ctx workflow.Context, req jobs.GenerationRequest) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting generation workflow",
		"job_id", req.JobID,
		"entity_type", string(req.EntityType),
		"slug", req.Slug,
		"locale", req.Locale,
	)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var a *activities.GenerationActivities

	// Verification is soft: the activity degrades internally, and any
	// residual error just means generating without a reference.
	var reference *models.CanonicalRecord
	if err := workflow.ExecuteActivity(ctx, a.VerifyReference, req).Get(ctx, &reference); err != nil {
		logger.Warn("Reference verification errored, continuing without reference",
			"job_id", req.JobID,
			"error", err,
		)
		reference = nil
	}

	var text string
	if err := workflow.ExecuteActivity(ctx, a.GenerateDescription, activities.GenerateInput{
		Request:   req,
		Reference: reference,
	}).Get(ctx, &text); err != nil {
		return failJob(ctx, a, req, "generation failed: "+err.Error())
	}

	var outcome safety.Outcome
	if err := workflow.ExecuteActivity(ctx, a.ValidateDescription, activities.ValidateInput{
		Request:   req,
		Text:      text,
		Reference: reference,
	}).Get(ctx, &outcome); err != nil {
		return failJob(ctx, a, req, "validation errored: "+err.Error())
	}
	if !outcome.Valid {
		return failJob(ctx, a, req, "validation failed: "+strings.Join(outcome.Errors, "; "))
	}

	var entityID int64
	if err := workflow.ExecuteActivity(ctx, a.PersistDescription, activities.PersistInput{
		Request:   req,
		Text:      outcome.Sanitized,
		Reference: reference,
	}).Get(ctx, &entityID); err != nil {
		return failJob(ctx, a, req, "persistence failed: "+err.Error())
	}

	if err := workflow.ExecuteActivity(ctx, a.FinalizeJob, activities.FinalizeInput{
		Request:  req,
		EntityID: &entityID,
	}).Get(ctx, nil); err != nil {
		logger.Error("Failed to finalize completed job", "job_id", req.JobID, "error", err)
		return err
	}

	logger.Info("Generation workflow completed",
		"job_id", req.JobID,
		"entity_id", entityID,
	)
	return nil
}

// failJob records the failure and releases the slot before surfacing
// the error.
func failJob(ctx workflow.Context, a *activities.GenerationActivities, req jobs.GenerationRequest, msg string) error {
	logger := workflow.GetLogger(ctx)
	logger.Error("Generation job failed", "job_id", req.JobID, "reason", msg)

	if err := workflow.ExecuteActivity(ctx, a.FinalizeJob, activities.FinalizeInput{
		Request: req,
		Error:   msg,
	}).Get(ctx, nil); err != nil {
		logger.Error("Failed to finalize failed job", "job_id", req.JobID, "error", err)
	}
	return errors.New(msg)
}
