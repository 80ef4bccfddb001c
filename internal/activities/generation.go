// Package activities holds the Temporal activities the generation
// workflow runs: verification, AI generation, safety validation,
// persistence, and job finalization.
package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/ai"
	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/retrieval"
	"github.com/filmatlas/filmatlas/internal/safety"
	"github.com/filmatlas/filmatlas/internal/slug"
	"github.com/filmatlas/filmatlas/internal/tmdb"
)

// EntityStore is the persistence surface one entity kind needs during
// generation. Satisfied by repository.EntityRepository.
type EntityStore interface {
	FindExact(ctx context.Context, slug string) (*models.Entity, error)
	FindByID(ctx context.Context, id int64) (*models.Entity, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, e models.Entity) (models.Entity, error)
	AddDescription(ctx context.Context, d models.Description) (models.Description, error)
	SetDefaultDescription(ctx context.Context, entityID int64, descriptionID string) error
}

// Verifier is the external verification collaborator.
type Verifier interface {
	Verify(ctx context.Context, entityType models.EntityType, name string, year *int) (tmdb.Outcome, error)
}

// GenerationActivities bundles the collaborators the generation
// pipeline needs. One instance is registered on the worker.
type GenerationActivities struct {
	stores          map[models.EntityType]EntityStore
	verifier        Verifier
	provider        ai.Provider
	sanitizer       *safety.PromptSanitizer
	outputValidator *safety.OutputValidator
	dataValidator   *safety.DataValidator
	status          *jobs.StatusStore
	slots           *genslot.Manager
	cache           *cache.Cache
	logger          *zap.Logger
}

// NewGenerationActivities wires the activity set.
func NewGenerationActivities(
	stores map[models.EntityType]EntityStore,
	verifier Verifier,
	provider ai.Provider,
	sanitizer *safety.PromptSanitizer,
	outputValidator *safety.OutputValidator,
	dataValidator *safety.DataValidator,
	status *jobs.StatusStore,
	slots *genslot.Manager,
	c *cache.Cache,
	logger *zap.Logger,
) *GenerationActivities {
	return &GenerationActivities{
		stores:          stores,
		verifier:        verifier,
		provider:        provider,
		sanitizer:       sanitizer,
		outputValidator: outputValidator,
		dataValidator:   dataValidator,
		status:          status,
		slots:           slots,
		cache:           c,
		logger:          logger,
	}
}

// VerifyReference resolves the trusted reference for a job: the one
// the dispatcher attached, or a fresh external lookup. Verification
// failures degrade to no reference, never fail the job.
func (a *GenerationActivities) VerifyReference(ctx context.Context, req jobs.GenerationRequest) (*models.CanonicalRecord, error) {
	if req.Reference != nil {
		return req.Reference, nil
	}
	if a.verifier == nil {
		return nil, nil
	}

	parsed := slug.Decode(req.Slug)
	outcome, err := a.verifier.Verify(ctx, req.EntityType, parsed.Name, parsed.Year)
	if err != nil {
		a.logger.Warn("Reference verification failed, generating without reference",
			zap.String("job_id", req.JobID),
			zap.String("slug", req.Slug),
			zap.Error(err),
		)
		return nil, nil
	}
	return outcome.Match, nil
}

// GenerateInput carries the generation request plus its resolved
// reference.
type GenerateInput struct {
	Request   jobs.GenerationRequest  `json:"request"`
	Reference *models.CanonicalRecord `json:"reference,omitempty"`
}

// GenerateDescription produces the raw description text.
func (a *GenerationActivities) GenerateDescription(ctx context.Context, in GenerateInput) (string, error) {
	parsed := slug.Decode(in.Request.Slug)
	name := parsed.Name
	if in.Reference != nil {
		name = in.Reference.Title
	}

	text, err := a.provider.GenerateDescription(ctx, ai.Request{
		EntityType: in.Request.EntityType,
		Name:       a.sanitizer.SanitizeText(name),
		Year:       parsed.Year,
		Locale:     in.Request.Locale,
		ContextTag: in.Request.ContextTag,
		Reference:  in.Reference,
	})
	if err != nil {
		return "", fmt.Errorf("generate description for job %s: %w", in.Request.JobID, err)
	}
	return text, nil
}

// ValidateInput carries generated text through the safety pipeline.
type ValidateInput struct {
	Request   jobs.GenerationRequest  `json:"request"`
	Text      string                  `json:"text"`
	Reference *models.CanonicalRecord `json:"reference,omitempty"`
}

// ValidateDescription runs the output and data validators. The
// returned outcome decides whether the workflow persists or fails the
// job; warnings pass through untouched.
func (a *GenerationActivities) ValidateDescription(ctx context.Context, in ValidateInput) (safety.Outcome, error) {
	reference := ""
	if in.Reference != nil {
		reference = in.Reference.Overview
	}
	outcome := a.outputValidator.ValidateDescription(in.Text, reference)

	if in.Reference != nil {
		var data safety.Outcome
		switch in.Request.EntityType {
		case models.EntityPerson:
			data = a.dataValidator.ValidatePersonData(safety.PersonData{
				Name:      in.Reference.Title,
				BirthYear: in.Reference.Year,
			}, in.Request.Slug)
		default:
			data = a.dataValidator.ValidateMovieData(safety.MovieData{
				Title:       in.Reference.Title,
				ReleaseYear: in.Reference.Year,
			}, in.Request.Slug)
		}
		outcome.Errors = append(outcome.Errors, data.Errors...)
		outcome.Warnings = append(outcome.Warnings, data.Warnings...)
		if len(outcome.Errors) > 0 {
			outcome.Valid = false
			outcome.Sanitized = ""
		}
	}

	if len(outcome.Warnings) > 0 {
		a.logger.Warn("Description validated with warnings",
			zap.String("job_id", in.Request.JobID),
			zap.Strings("warnings", outcome.Warnings),
		)
	}
	return outcome, nil
}

// PersistInput carries the validated, sanitized text to store.
type PersistInput struct {
	Request   jobs.GenerationRequest  `json:"request"`
	Text      string                  `json:"text"`
	Reference *models.CanonicalRecord `json:"reference,omitempty"`
}

// PersistDescription stores the description, creating the entity
// first when the job targets a slug with no local record, and
// invalidates the memoized retrieval result.
func (a *GenerationActivities) PersistDescription(ctx context.Context, in PersistInput) (int64, error) {
	store, ok := a.stores[in.Request.EntityType]
	if !ok {
		return 0, fmt.Errorf("no store for entity type %q", in.Request.EntityType)
	}

	entity, err := a.resolveEntity(ctx, store, in)
	if err != nil {
		return 0, err
	}

	locale := in.Request.Locale
	if locale == "" {
		locale = genslot.DefaultLocale
	}
	desc, err := store.AddDescription(ctx, models.Description{
		EntityID: entity.ID,
		Locale:   locale,
		Text:     in.Text,
	})
	if err != nil {
		return 0, err
	}
	if entity.DefaultDescriptionID == nil {
		if err := store.SetDefaultDescription(ctx, entity.ID, desc.ID); err != nil {
			return 0, err
		}
	}

	key := retrieval.CacheKey(in.Request.EntityType, in.Request.Slug, in.Request.Locale, "")
	if err := a.cache.Delete(ctx, key); err != nil {
		a.logger.Warn("Failed to invalidate retrieval cache",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	a.logger.Info("Description persisted",
		zap.String("job_id", in.Request.JobID),
		zap.String("slug", entity.Slug),
		zap.Int64("entity_id", entity.ID),
		zap.String("description_id", desc.ID),
	)
	return entity.ID, nil
}

func (a *GenerationActivities) resolveEntity(ctx context.Context, store EntityStore, in PersistInput) (*models.Entity, error) {
	// Jobs queued against an already-materialized record carry its id;
	// the stored slug may differ from the requested one after collision
	// probing, so the id lookup comes first.
	if in.Request.ExistingEntityID != nil {
		entity, err := store.FindByID(ctx, *in.Request.ExistingEntityID)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			return entity, nil
		}
		a.logger.Warn("Existing entity for job vanished, falling back to slug lookup",
			zap.String("job_id", in.Request.JobID),
			zap.Int64("entity_id", *in.Request.ExistingEntityID),
		)
	}

	entity, err := store.FindExact(ctx, in.Request.Slug)
	if err != nil {
		return nil, err
	}
	if entity != nil {
		return entity, nil
	}

	parsed := slug.Decode(in.Request.Slug)
	name, year := parsed.Name, parsed.Year
	if in.Reference != nil {
		name = in.Reference.Title
		year = in.Reference.Year
	}

	var probeErr error
	exists := func(candidate string) bool {
		if probeErr != nil {
			return false
		}
		ok, err := store.SlugExists(ctx, candidate)
		if err != nil {
			probeErr = err
			return false
		}
		return ok
	}
	s, err := slug.EncodeUnique(name, year, exists)
	if probeErr != nil {
		return nil, fmt.Errorf("allocate slug for job %s: %w", in.Request.JobID, probeErr)
	}
	if err != nil {
		return nil, err
	}

	created, err := store.Create(ctx, models.Entity{Slug: s, Name: name, Year: year})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// FinalizeInput closes out a job.
type FinalizeInput struct {
	Request  jobs.GenerationRequest `json:"request"`
	EntityID *int64                 `json:"entity_id,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// FinalizeJob records the terminal job status and releases the
// generation slot. Release is unconditional so a failed job never
// starves its fingerprint.
func (a *GenerationActivities) FinalizeJob(ctx context.Context, in FinalizeInput) error {
	if in.Error == "" && in.EntityID != nil {
		if err := a.status.MarkDone(ctx, in.Request.JobID, *in.EntityID); err != nil {
			return err
		}
	} else {
		if err := a.status.MarkFailed(ctx, in.Request.JobID, in.Error); err != nil {
			return err
		}
	}

	fp := genslot.NewFingerprint(in.Request.EntityType, in.Request.Slug, in.Request.Locale, in.Request.ContextTag)
	return a.slots.Release(ctx, fp)
}
