package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/cache"
	"github.com/filmatlas/filmatlas/internal/disambig"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/retrieval"
)

type fakeRetriever struct {
	result retrieval.Result
	err    error
	last   retrieval.Request
}

func (f *fakeRetriever) Retrieve(_ context.Context, req retrieval.Request) (retrieval.Result, error) {
	f.last = req
	if f.err != nil {
		return retrieval.Result{}, f.err
	}
	return f.result, nil
}

func newTestServer(t *testing.T, r Retriever) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewRetrievalHandler(map[string]Retriever{"movies": r}, zap.NewNop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestFoundReturns200(t *testing.T) {
	year := 1999
	r := &fakeRetriever{result: retrieval.Found(retrieval.FoundPayload{
		Entity: models.Entity{ID: 1, Slug: "the-matrix-1999", Name: "The Matrix", Year: &year},
	})}
	srv := newTestServer(t, r)

	resp, body := get(t, srv.URL+"/api/v1/movies/the-matrix-1999?version=d-1&locale=de-DE")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "the-matrix-1999", body["entity"].(map[string]any)["slug"])
	assert.Equal(t, "d-1", r.last.VersionID)
	assert.Equal(t, "de-DE", r.last.Locale)
}

func TestCachedReturns200WithHitHeader(t *testing.T) {
	raw, err := json.Marshal(retrieval.FoundPayload{Entity: models.Entity{Slug: "dune-2021"}})
	require.NoError(t, err)
	srv := newTestServer(t, &fakeRetriever{result: retrieval.Cached(raw)})

	resp, body := get(t, srv.URL+"/api/v1/movies/dune-2021")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, "dune-2021", body["entity"].(map[string]any)["slug"])
}

func TestGenerationQueuedReturns202(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{result: retrieval.GenerationQueued(jobs.QueueResult{
		JobID:  "job-1",
		Status: jobs.StatusPending,
	})})

	resp, body := get(t, srv.URL+"/api/v1/movies/the-matrix-1999")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-1", body["job_id"])
}

func TestDisambiguationReturns300(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{result: retrieval.Disambiguation(disambig.Metadata{
		Ambiguous: true,
		Alternatives: []disambig.Candidate{
			{Slug: "dune-2021", Title: "Dune"},
			{Slug: "dune-1984", Title: "Dune"},
		},
	})})

	resp, body := get(t, srv.URL+"/api/v1/movies/dune")
	assert.Equal(t, http.StatusMultipleChoices, resp.StatusCode)
	assert.Equal(t, true, body["ambiguous"])
}

func TestInvalidSlugReturns400(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{result: retrieval.InvalidSlug("Suspicious slug pattern detected", 0.3)})

	resp, body := get(t, srv.URL+"/api/v1/movies/test-123")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Suspicious slug pattern detected", body["error"])
	assert.InDelta(t, 0.3, body["confidence"].(float64), 0.001)
}

func TestNotFoundVariantsReturn404(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{result: retrieval.NotFound()})
	resp, _ := get(t, srv.URL+"/api/v1/movies/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv = newTestServer(t, &fakeRetriever{result: retrieval.VersionNotFound()})
	resp, _ = get(t, srv.URL+"/api/v1/movies/the-matrix-1999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownKindReturns404(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{result: retrieval.NotFound()})
	resp, _ := get(t, srv.URL+"/api/v1/books/dune")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEngineErrorReturns500(t *testing.T) {
	srv := newTestServer(t, &fakeRetriever{err: errors.New("boom")})
	resp, body := get(t, srv.URL+"/api/v1/movies/the-matrix-1999")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body["error"])
}

func TestJobStatusEndpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewWithClient(client, zap.NewNop())
	status := jobs.NewStatusStore(c, 15*time.Minute, zap.NewNop())
	require.NoError(t, status.Initialize(context.Background(), jobs.Record{
		JobID:      "job-1",
		EntityType: models.EntityMovie,
		Slug:       "the-matrix-1999",
	}))

	mux := http.NewServeMux()
	NewJobStatusHandler(status, zap.NewNop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.URL+"/api/v1/jobs/job-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobs.StatusPending, body["status"])

	resp, body = get(t, srv.URL+"/api/v1/jobs/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "not found")
}
