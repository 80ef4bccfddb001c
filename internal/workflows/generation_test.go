package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/filmatlas/filmatlas/internal/activities"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/safety"
)

func yearPtr(y int) *int { return &y }

func matrixRequest() jobs.GenerationRequest {
	return jobs.GenerationRequest{
		JobID:      "job-1",
		EntityType: models.EntityMovie,
		Slug:       "the-matrix-1999",
		Locale:     "en-US",
	}
}

type workflowMocks struct {
	env       *testsuite.TestWorkflowEnvironment
	finalized []activities.FinalizeInput
}

func newWorkflowEnv(t *testing.T, generated string, outcome safety.Outcome) *workflowMocks {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	m := &workflowMocks{env: env}

	env.RegisterActivityWithOptions(
		func(ctx context.Context, req jobs.GenerationRequest) (*models.CanonicalRecord, error) {
			return &models.CanonicalRecord{
				ExternalID: 603,
				Title:      "The Matrix",
				Year:       yearPtr(1999),
				Overview:   "A hacker learns the truth.",
			}, nil
		},
		activity.RegisterOptions{Name: "VerifyReference"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.GenerateInput) (string, error) {
			if generated == "" {
				return "", errors.New("provider unavailable")
			}
			return generated, nil
		},
		activity.RegisterOptions{Name: "GenerateDescription"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.ValidateInput) (safety.Outcome, error) {
			return outcome, nil
		},
		activity.RegisterOptions{Name: "ValidateDescription"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.PersistInput) (int64, error) {
			return 42, nil
		},
		activity.RegisterOptions{Name: "PersistDescription"},
	)
	env.RegisterActivityWithOptions(
		func(ctx context.Context, in activities.FinalizeInput) error {
			m.finalized = append(m.finalized, in)
			return nil
		},
		activity.RegisterOptions{Name: "FinalizeJob"},
	)
	return m
}

func TestGenerationWorkflowHappyPath(t *testing.T) {
	m := newWorkflowEnv(t, "Generated description text.", safety.Outcome{
		Valid:     true,
		Sanitized: "Generated description text.",
	})

	m.env.ExecuteWorkflow(GenerationWorkflow, matrixRequest())
	require.True(t, m.env.IsWorkflowCompleted())
	require.NoError(t, m.env.GetWorkflowError())

	require.Len(t, m.finalized, 1)
	assert.Empty(t, m.finalized[0].Error)
	require.NotNil(t, m.finalized[0].EntityID)
	assert.EqualValues(t, 42, *m.finalized[0].EntityID)
}

func TestGenerationWorkflowValidationFailure(t *testing.T) {
	m := newWorkflowEnv(t, "too short", safety.Outcome{
		Valid:  false,
		Errors: []string{"Description too short: 9 characters"},
	})

	m.env.ExecuteWorkflow(GenerationWorkflow, matrixRequest())
	require.True(t, m.env.IsWorkflowCompleted())
	require.Error(t, m.env.GetWorkflowError())

	require.Len(t, m.finalized, 1, "failed job must still be finalized")
	assert.Contains(t, m.finalized[0].Error, "too short")
	assert.Nil(t, m.finalized[0].EntityID)
}

func TestGenerationWorkflowProviderFailure(t *testing.T) {
	m := newWorkflowEnv(t, "", safety.Outcome{})

	m.env.ExecuteWorkflow(GenerationWorkflow, matrixRequest())
	require.True(t, m.env.IsWorkflowCompleted())
	require.Error(t, m.env.GetWorkflowError())

	require.Len(t, m.finalized, 1)
	assert.Contains(t, m.finalized[0].Error, "generation failed")
}
