package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/disambig"
	"github.com/filmatlas/filmatlas/internal/featureflags"
	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/metrics"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/plausibility"
	"github.com/filmatlas/filmatlas/internal/safety"
	"github.com/filmatlas/filmatlas/internal/slug"
	"github.com/filmatlas/filmatlas/internal/tmdb"
	"github.com/filmatlas/filmatlas/internal/tracing"
)

// Request is one retrieval call. VersionID selects a specific
// description; empty means the default. Locale and ContextTag feed the
// generation fingerprint.
type Request struct {
	Slug       string
	VersionID  string
	Locale     string
	ContextTag string
}

// EntityKind is the capability one entity kind plugs into the engine.
// The state machine itself is kind-agnostic.
type EntityKind interface {
	EntityType() models.EntityType
	FindExact(ctx context.Context, slug string) (*models.Entity, error)
	FindByPrefix(ctx context.Context, base string) ([]models.Entity, error)
	Disambiguate(ctx context.Context, requestedSlug string) (*disambig.Metadata, error)
	CreateFromExternal(ctx context.Context, rec models.CanonicalRecord) (*models.Entity, error)
}

// Verifier is the external metadata-verification collaborator.
type Verifier interface {
	Verify(ctx context.Context, entityType models.EntityType, name string, year *int) (tmdb.Outcome, error)
}

// GenerationQueuer dispatches exactly one generation job per
// fingerprint.
type GenerationQueuer interface {
	Queue(ctx context.Context, fp genslot.Fingerprint, confidence *float64, existingEntityID *int64, ref *models.CanonicalRecord) (jobs.QueueResult, error)
}

// FlagChecker looks up a boolean feature flag by name.
type FlagChecker interface {
	IsEnabled(name string) bool
}

// Engine runs the retrieval state machine for one entity kind. Steps,
// in fixed order: cache, exact lookup, year-less fallback, feature
// gate, plausibility, external verification, queue generation.
type Engine struct {
	kind      EntityKind
	cache     *cache.Cache
	cacheTTL  time.Duration
	flags     FlagChecker
	sanitizer *safety.PromptSanitizer
	filter    *plausibility.Filter
	verifier  Verifier
	queuer    GenerationQueuer
	logger    *zap.Logger
}

// NewEngine wires an engine from its collaborators.
func NewEngine(
	kind EntityKind,
	c *cache.Cache,
	cacheTTL time.Duration,
	flags FlagChecker,
	sanitizer *safety.PromptSanitizer,
	filter *plausibility.Filter,
	verifier Verifier,
	queuer GenerationQueuer,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		kind:      kind,
		cache:     c,
		cacheTTL:  cacheTTL,
		flags:     flags,
		sanitizer: sanitizer,
		filter:    filter,
		verifier:  verifier,
		queuer:    queuer,
		logger:    logger,
	}
}

// Retrieve resolves one request. Local-lookup and cache-read failures
// are fatal and propagate; only external verification degrades softly.
func (e *Engine) Retrieve(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "retrieval.retrieve")
	defer span.End()

	entityType := string(e.kind.EntityType())
	start := time.Now()
	result, err := e.retrieve(ctx, req)
	metrics.RetrievalDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalRequests.WithLabelValues(entityType, "error").Inc()
		return Result{}, err
	}
	metrics.RetrievalRequests.WithLabelValues(entityType, result.Variant()).Inc()
	return result, nil
}

func (e *Engine) retrieve(ctx context.Context, req Request) (Result, error) {
	sanitized, err := e.sanitizer.SanitizeSlug(req.Slug)
	if err != nil {
		if errors.Is(err, safety.ErrInputRejected) {
			return InvalidSlug(err.Error(), 0.0), nil
		}
		return Result{}, err
	}
	req.Slug = sanitized

	// Step 1: cache.
	key := e.cacheKey(req)
	raw, found, err := e.cache.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval cache read: %w", err)
	}
	if found {
		metrics.CacheHits.WithLabelValues("retrieval").Inc()
		return Cached([]byte(raw)), nil
	}
	metrics.CacheMisses.WithLabelValues("retrieval").Inc()

	// Step 2: exact lookup.
	entity, err := e.kind.FindExact(ctx, req.Slug)
	if err != nil {
		return Result{}, err
	}
	if entity != nil {
		return e.resolveFound(ctx, req, entity)
	}

	// Step 3: year-less fallback. The repository orders by recency, so
	// the first match wins.
	parsed := slug.Decode(req.Slug)
	if parsed.Year == nil {
		candidates, err := e.kind.FindByPrefix(ctx, req.Slug)
		if err != nil {
			return Result{}, err
		}
		if len(candidates) > 0 {
			return e.resolveFound(ctx, req, &candidates[0])
		}
	}

	// Step 4: nothing stored and generation is off.
	if !e.flags.IsEnabled(featureflags.AIDescriptionGeneration) {
		return NotFound(), nil
	}

	// Step 5: plausibility gate before any external budget is spent.
	decision := e.filter.Check(e.kind.EntityType(), req.Slug)
	if !decision.ShouldGenerate {
		return InvalidSlug(decision.Reason, decision.Confidence), nil
	}

	// Step 6: external verification, soft-failable.
	if e.verifier != nil && e.flags.IsEnabled(featureflags.TMDBVerification) {
		outcome, err := e.verifier.Verify(ctx, e.kind.EntityType(), parsed.Name, parsed.Year)
		if err != nil {
			e.logger.Warn("External verification failed, treating as no match",
				zap.String("slug", req.Slug),
				zap.Error(err),
			)
		} else {
			if outcome.Match != nil {
				return e.materialize(ctx, req, *outcome.Match, decision.Confidence)
			}
			if len(outcome.Candidates) >= 2 {
				return Disambiguation(candidatesMetadata(outcome.Candidates)), nil
			}
		}
	}

	// Step 7: queue generation.
	fp := genslot.NewFingerprint(e.kind.EntityType(), req.Slug, req.Locale, req.ContextTag)
	confidence := decision.Confidence
	job, err := e.queuer.Queue(ctx, fp, &confidence, nil, nil)
	if err != nil {
		return Result{}, err
	}
	return GenerationQueued(job), nil
}

// resolveFound handles the Found/VersionNotFound branch shared by the
// exact and fallback lookups, attaches disambiguation metadata, and
// memoizes the payload.
func (e *Engine) resolveFound(ctx context.Context, req Request, entity *models.Entity) (Result, error) {
	var version *models.Description
	if req.VersionID != "" {
		version = entity.DescriptionByID(req.VersionID)
		if version == nil {
			return VersionNotFound(), nil
		}
	}

	meta, err := e.kind.Disambiguate(ctx, req.Slug)
	if err != nil {
		return Result{}, err
	}

	payload := FoundPayload{Entity: *entity, Version: version, Disambiguation: meta}
	if raw, err := payload.marshal(); err == nil {
		// Memoization is best effort: a cache write failure must not
		// fail a successful lookup.
		if err := e.cache.Set(ctx, e.cacheKey(req), string(raw), e.cacheTTL); err != nil {
			e.logger.Warn("Failed to memoize retrieval result",
				zap.String("slug", req.Slug),
				zap.Error(err),
			)
		}
	}
	return Found(payload), nil
}

// materialize creates a local record from a verified canonical match,
// then re-runs the exact lookup against it so the returned entity is
// the stored row. A fresh record has no description yet, so a baseline
// generation job is queued for it, carrying the entity id and the
// verified record so the worker neither re-verifies nor re-creates.
func (e *Engine) materialize(ctx context.Context, req Request, rec models.CanonicalRecord, confidence float64) (Result, error) {
	created, err := e.kind.CreateFromExternal(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("materialize verified entity %s: %w", req.Slug, err)
	}

	stored, err := e.kind.FindExact(ctx, created.Slug)
	if err != nil {
		return Result{}, err
	}
	if stored == nil {
		stored = created
	}

	e.logger.Info("Entity materialized from external verification",
		zap.String("requested_slug", req.Slug),
		zap.String("slug", stored.Slug),
		zap.String("entity_type", string(e.kind.EntityType())),
	)

	if len(stored.Descriptions) == 0 {
		// Best effort, like memoization: the record itself is already
		// served as Found whether or not the baseline job dispatches.
		fp := genslot.NewFingerprint(e.kind.EntityType(), req.Slug, req.Locale, req.ContextTag)
		if _, err := e.queuer.Queue(ctx, fp, &confidence, &stored.ID, &rec); err != nil {
			e.logger.Warn("Failed to queue baseline description for materialized entity",
				zap.String("slug", stored.Slug),
				zap.Error(err),
			)
		}
	}

	return e.resolveFound(ctx, req, stored)
}

func (e *Engine) cacheKey(req Request) string {
	return CacheKey(e.kind.EntityType(), req.Slug, req.Locale, req.VersionID)
}

// CacheKey builds the memoization key for one retrieval. The worker
// uses it to invalidate after persisting a new description.
func CacheKey(entityType models.EntityType, slugStr, locale, versionID string) string {
	if versionID == "" {
		versionID = "default"
	}
	if locale == "" {
		locale = genslot.DefaultLocale
	}
	return fmt.Sprintf("retrieval:%s:%s:%s:%s", entityType, slugStr, locale, versionID)
}

func candidatesMetadata(candidates []models.CanonicalRecord) disambig.Metadata {
	sorted := make([]models.CanonicalRecord, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi, yj := sorted[i].Year, sorted[j].Year
		if yi == nil {
			return false
		}
		if yj == nil {
			return true
		}
		return *yi > *yj
	})

	alternatives := make([]disambig.Candidate, 0, len(sorted))
	for _, c := range sorted {
		alternatives = append(alternatives, disambig.Candidate{
			Slug:  slug.Encode(c.Title, c.Year),
			Title: c.Title,
			Year:  c.Year,
		})
	}
	return disambig.Metadata{Ambiguous: true, Alternatives: alternatives}
}
