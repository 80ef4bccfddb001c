package activities

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/ai"
	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/genslot"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/retrieval"
	"github.com/filmatlas/filmatlas/internal/safety"
	"github.com/filmatlas/filmatlas/internal/tmdb"
)

type memStore struct {
	mu       sync.Mutex
	entities map[string]models.Entity
	descs    []models.Description
	defaults map[int64]string
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{entities: make(map[string]models.Entity), defaults: make(map[int64]string)}
}

func (s *memStore) FindExact(_ context.Context, slug string) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[slug]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (*models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (s *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entities[slug]
	return ok, nil
}

func (s *memStore) Create(_ context.Context, e models.Entity) (models.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entities[e.Slug] = e
	return e, nil
}

func (s *memStore) AddDescription(_ context.Context, d models.Description) (models.Description, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = "d-generated"
	s.descs = append(s.descs, d)
	return d, nil
}

func (s *memStore) SetDefaultDescription(_ context.Context, entityID int64, descriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[entityID] = descriptionID
	return nil
}

type fakeVerifier struct {
	outcome tmdb.Outcome
	calls   int
}

func (v *fakeVerifier) Verify(_ context.Context, _ models.EntityType, _ string, _ *int) (tmdb.Outcome, error) {
	v.calls++
	return v.outcome, nil
}

type actFixture struct {
	acts     *GenerationActivities
	store    *memStore
	verifier *fakeVerifier
	provider *ai.StaticProvider
	cache    *cache.Cache
	slots    *genslot.Manager
	status   *jobs.StatusStore
}

func newActFixture(t *testing.T) *actFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewWithClient(client, zap.NewNop())

	store := newMemStore()
	verifier := &fakeVerifier{}
	provider := &ai.StaticProvider{Text: "Generated text."}
	sanitizer := safety.NewPromptSanitizer(safety.DefaultConfig(), zap.NewNop())
	html := safety.NewHTMLSanitizer(zap.NewNop())
	output := safety.NewOutputValidator(safety.DefaultConfig(), html, sanitizer, zap.NewNop())
	data := safety.NewDataValidator(zap.NewNop())
	slots := genslot.NewManager(c, 10*time.Minute, zap.NewNop())
	status := jobs.NewStatusStore(c, 15*time.Minute, zap.NewNop())

	acts := NewGenerationActivities(
		map[models.EntityType]EntityStore{models.EntityMovie: store, models.EntityPerson: store},
		verifier, provider, sanitizer, output, data, status, slots, c, zap.NewNop(),
	)
	return &actFixture{
		acts:     acts,
		store:    store,
		verifier: verifier,
		provider: provider,
		cache:    c,
		slots:    slots,
		status:   status,
	}
}

func yearPtr(y int) *int { return &y }

func movieRequest() jobs.GenerationRequest {
	return jobs.GenerationRequest{
		JobID:      "job-1",
		EntityType: models.EntityMovie,
		Slug:       "the-matrix-1999",
		Locale:     "en-US",
	}
}

func TestVerifyReferenceUsesAttachedRecord(t *testing.T) {
	f := newActFixture(t)
	req := movieRequest()
	req.Reference = &models.CanonicalRecord{ExternalID: 603, Title: "The Matrix"}

	ref, err := f.acts.VerifyReference(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.EqualValues(t, 603, ref.ExternalID)
	assert.Zero(t, f.verifier.calls)
}

func TestVerifyReferenceLooksUpExternally(t *testing.T) {
	f := newActFixture(t)
	match := models.CanonicalRecord{ExternalID: 603, Title: "The Matrix", Year: yearPtr(1999)}
	f.verifier.outcome = tmdb.Outcome{Match: &match}

	ref, err := f.acts.VerifyReference(context.Background(), movieRequest())
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "The Matrix", ref.Title)
	assert.Equal(t, 1, f.verifier.calls)
}

func TestGenerateDescriptionPrefersReferenceTitle(t *testing.T) {
	f := newActFixture(t)

	text, err := f.acts.GenerateDescription(context.Background(), GenerateInput{
		Request:   movieRequest(),
		Reference: &models.CanonicalRecord{Title: "The Matrix", Year: yearPtr(1999), Overview: "o"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Generated text.", text)
	require.Len(t, f.provider.Requests, 1)
	assert.Equal(t, "The Matrix", f.provider.Requests[0].Name)
	require.NotNil(t, f.provider.Requests[0].Year)
	assert.Equal(t, 1999, *f.provider.Requests[0].Year)
}

func TestValidateDescriptionTooShort(t *testing.T) {
	f := newActFixture(t)

	outcome, err := f.acts.ValidateDescription(context.Background(), ValidateInput{
		Request: movieRequest(),
		Text:    "too short",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Valid)
	assert.Empty(t, outcome.Sanitized)
	require.NotEmpty(t, outcome.Errors)
	assert.Contains(t, outcome.Errors[0], "too short")
}

func TestValidateDescriptionDataMismatchFails(t *testing.T) {
	f := newActFixture(t)
	text := strings.Repeat("A perfectly reasonable sentence about a movie. ", 4)

	outcome, err := f.acts.ValidateDescription(context.Background(), ValidateInput{
		Request:   movieRequest(),
		Text:      text,
		Reference: &models.CanonicalRecord{Title: "Inception", Year: yearPtr(1999)},
	})
	require.NoError(t, err)
	assert.False(t, outcome.Valid, "reference title must match the slug")
	assert.Empty(t, outcome.Sanitized)
}

func TestValidateDescriptionValidWithoutReference(t *testing.T) {
	f := newActFixture(t)
	text := strings.Repeat("A perfectly reasonable sentence about a movie. ", 4)

	outcome, err := f.acts.ValidateDescription(context.Background(), ValidateInput{
		Request: movieRequest(),
		Text:    text,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Valid)
	assert.NotEmpty(t, outcome.Sanitized)
}

func TestPersistDescriptionCreatesEntity(t *testing.T) {
	f := newActFixture(t)
	ctx := context.Background()

	// Seed a stale memoized miss so persistence has something to evict.
	key := retrieval.CacheKey(models.EntityMovie, "the-matrix-1999", "en-US", "")
	require.NoError(t, f.cache.Set(ctx, key, "stale", time.Minute))

	entityID, err := f.acts.PersistDescription(ctx, PersistInput{
		Request:   movieRequest(),
		Text:      "Validated text.",
		Reference: &models.CanonicalRecord{Title: "The Matrix", Year: yearPtr(1999)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, entityID)

	stored, err := f.store.FindExact(ctx, "the-matrix-1999")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "The Matrix", stored.Name)

	require.Len(t, f.store.descs, 1)
	assert.Equal(t, "Validated text.", f.store.descs[0].Text)
	assert.Equal(t, "en-US", f.store.descs[0].Locale)
	assert.Equal(t, "d-generated", f.store.defaults[entityID], "first description becomes the default")

	_, found, err := f.cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "memoized retrieval result must be invalidated")
}

func TestPersistDescriptionReusesExistingEntity(t *testing.T) {
	f := newActFixture(t)
	ctx := context.Background()
	defaultID := "d-old"
	f.store.entities["the-matrix-1999"] = models.Entity{
		ID: 7, Slug: "the-matrix-1999", Name: "The Matrix", Year: yearPtr(1999),
		DefaultDescriptionID: &defaultID,
	}

	entityID, err := f.acts.PersistDescription(ctx, PersistInput{
		Request: movieRequest(),
		Text:    "Another locale's text.",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 7, entityID)
	assert.Empty(t, f.store.defaults, "existing default is kept")
}

func TestPersistDescriptionTargetsExistingEntityByID(t *testing.T) {
	f := newActFixture(t)
	ctx := context.Background()
	// The materialized record got a suffixed slug, so the requested
	// slug resolves to nothing; the job's entity id must win over a
	// slug lookup that would create a duplicate.
	f.store.entities["the-matrix-1999-2"] = models.Entity{
		ID: 9, Slug: "the-matrix-1999-2", Name: "The Matrix", Year: yearPtr(1999),
	}
	req := movieRequest()
	existing := int64(9)
	req.ExistingEntityID = &existing

	entityID, err := f.acts.PersistDescription(ctx, PersistInput{
		Request: req,
		Text:    "Baseline text.",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9, entityID)
	assert.Len(t, f.store.entities, 1, "no duplicate entity created")
	require.Len(t, f.store.descs, 1)
	assert.EqualValues(t, 9, f.store.descs[0].EntityID)
}

func TestFinalizeJobDoneReleasesSlot(t *testing.T) {
	f := newActFixture(t)
	ctx := context.Background()
	req := movieRequest()
	fp := genslot.NewFingerprint(req.EntityType, req.Slug, req.Locale, req.ContextTag)

	won, err := f.slots.Acquire(ctx, fp, req.JobID)
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, f.status.Initialize(ctx, jobs.Record{JobID: req.JobID, EntityType: req.EntityType, Slug: req.Slug}))

	entityID := int64(42)
	require.NoError(t, f.acts.FinalizeJob(ctx, FinalizeInput{Request: req, EntityID: &entityID}))

	rec, err := f.status.Get(ctx, req.JobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, jobs.StatusDone, rec.Status)

	won, err = f.slots.Acquire(ctx, fp, "job-2")
	require.NoError(t, err)
	assert.True(t, won, "slot must be free after finalization")
}

func TestFinalizeJobFailure(t *testing.T) {
	f := newActFixture(t)
	ctx := context.Background()
	req := movieRequest()
	require.NoError(t, f.status.Initialize(ctx, jobs.Record{JobID: req.JobID, EntityType: req.EntityType, Slug: req.Slug}))

	require.NoError(t, f.acts.FinalizeJob(ctx, FinalizeInput{Request: req, Error: "validation failed"}))

	rec, err := f.status.Get(ctx, req.JobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, jobs.StatusFailed, rec.Status)
	assert.Equal(t, "validation failed", rec.Error)
}
