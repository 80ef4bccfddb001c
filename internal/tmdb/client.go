// Package tmdb is the external metadata-verification client. It asks
// TMDB whether a requested title or person actually exists before any
// AI budget is spent on it.
//
// Verification is soft-failable: timeouts, non-2xx responses and
// decode failures degrade to "no match" so an upstream outage never
// turns into a retrieval failure.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/filmatlas/filmatlas/internal/metrics"
	"github.com/filmatlas/filmatlas/internal/models"
)

const defaultSearchLimit = 5

// Client talks to the TMDB search API with a shared rate limiter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Config carries the knobs for a verification client.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

// NewClient creates a TMDB client. A zero timeout gets a conservative
// default so a hung upstream cannot hold a retrieval open.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}
}

// Outcome is the result of verifying one slug: either a single best
// match, or several plausible candidates with no clear winner, or
// neither.
type Outcome struct {
	Match      *models.CanonicalRecord
	Candidates []models.CanonicalRecord
}

// Verify searches TMDB for the given name and picks a best match. A
// supplied year must match exactly; without one, several same-titled
// results become candidates instead of a match.
func (c *Client) Verify(ctx context.Context, entityType models.EntityType, name string, year *int) (Outcome, error) {
	records, err := c.Search(ctx, entityType, name, defaultSearchLimit)
	if err != nil {
		// Soft failure by contract: verification degrades to no match.
		c.logger.Warn("Verification degraded to no match",
			zap.String("entity_type", string(entityType)),
			zap.String("query", name),
			zap.Error(err),
		)
		return Outcome{}, nil
	}

	var titleMatches []models.CanonicalRecord
	wanted := normalizeTitle(name)
	for _, rec := range records {
		if normalizeTitle(rec.Title) != wanted {
			continue
		}
		if year != nil {
			if rec.Year != nil && *rec.Year == *year {
				match := rec
				return Outcome{Match: &match}, nil
			}
			continue
		}
		titleMatches = append(titleMatches, rec)
	}

	switch len(titleMatches) {
	case 0:
		return Outcome{}, nil
	case 1:
		return Outcome{Match: &titleMatches[0]}, nil
	default:
		return Outcome{Candidates: titleMatches}, nil
	}
}

// Search runs a raw TMDB search and maps the results to canonical
// records. Unlike Verify, errors are returned to the caller.
func (c *Client) Search(ctx context.Context, entityType models.EntityType, query string, limit int) ([]models.CanonicalRecord, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tmdb rate limit wait: %w", err)
	}

	endpoint, err := searchPath(entityType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := "ok"
	defer func() {
		metrics.VerificationRequests.WithLabelValues(string(entityType), result).Inc()
		metrics.VerificationDuration.Observe(time.Since(start).Seconds())
	}()

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		result = "error"
		return nil, fmt.Errorf("build tmdb request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result = "error"
		return nil, fmt.Errorf("tmdb search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result = "error"
		return nil, fmt.Errorf("tmdb search: unexpected status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result = "error"
		return nil, fmt.Errorf("decode tmdb response: %w", err)
	}

	records := make([]models.CanonicalRecord, 0, limit)
	for _, r := range body.Results {
		records = append(records, r.toCanonical(entityType))
		if len(records) == limit {
			break
		}
	}
	return records, nil
}

func searchPath(entityType models.EntityType) (string, error) {
	switch entityType {
	case models.EntityMovie:
		return "/search/movie", nil
	case models.EntityPerson:
		return "/search/person", nil
	case models.EntityTVSeries, models.EntityTVShow:
		return "/search/tv", nil
	default:
		return "", fmt.Errorf("no tmdb search path for entity type %q", entityType)
	}
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// searchResult covers the union of the fields the three search
// endpoints return; movies use title/release_date, tv uses
// name/first_air_date, people just name.
type searchResult struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	Overview     string `json:"overview"`
}

func (r searchResult) toCanonical(entityType models.EntityType) models.CanonicalRecord {
	title := r.Title
	date := r.ReleaseDate
	if entityType != models.EntityMovie {
		title = r.Name
		date = r.FirstAirDate
	}
	return models.CanonicalRecord{
		ExternalID: r.ID,
		Title:      title,
		Year:       yearFromDate(date),
		Overview:   r.Overview,
	}
}

func yearFromDate(date string) *int {
	if len(date) < 4 {
		return nil
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil
	}
	return &y
}

func normalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
