// Package disambig decides whether a requested slug is ambiguous and,
// when it is, builds the alternatives a caller can present.
package disambig

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/slug"
)

// Candidate is one entity sharing a base slug with the request.
type Candidate struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Year  *int   `json:"year,omitempty"`
}

// Metadata describes an ambiguous lookup. Alternatives are ordered
// most-recent-first, entities without a year last.
type Metadata struct {
	Ambiguous    bool        `json:"ambiguous"`
	Alternatives []Candidate `json:"alternatives"`
}

// Finder lists every entity whose slug shares a base title slug.
type Finder interface {
	FindAllByTitleSlug(ctx context.Context, base string) ([]models.Entity, error)
}

// Resolver checks requested slugs for ambiguity against stored
// entities.
type Resolver struct {
	finder Finder
	logger *zap.Logger
}

// NewResolver creates a resolver over the given finder.
func NewResolver(finder Finder, logger *zap.Logger) *Resolver {
	return &Resolver{finder: finder, logger: logger}
}

// Resolve returns disambiguation metadata for requestedSlug, or nil
// when the request is unambiguous. A slug that already encodes a year
// is an exact request and never disambiguates; a year-less slug is
// ambiguous only when two or more entities share its base.
func (r *Resolver) Resolve(ctx context.Context, requestedSlug string) (*Metadata, error) {
	parsed := slug.Decode(requestedSlug)
	if parsed.Year != nil {
		return nil, nil
	}

	entities, err := r.finder.FindAllByTitleSlug(ctx, requestedSlug)
	if err != nil {
		return nil, fmt.Errorf("list entities for base slug %s: %w", requestedSlug, err)
	}
	if len(entities) < 2 {
		return nil, nil
	}

	sorted := make([]models.Entity, len(entities))
	copy(sorted, entities)
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

	alternatives := make([]Candidate, 0, len(sorted))
	for _, e := range sorted {
		alternatives = append(alternatives, Candidate{
			Slug:  e.Slug,
			Title: e.Name,
			Year:  e.Year,
		})
	}

	r.logger.Debug("Ambiguous slug resolved to alternatives",
		zap.String("slug", requestedSlug),
		zap.Int("candidates", len(alternatives)),
	)
	return &Metadata{Ambiguous: true, Alternatives: alternatives}, nil
}
