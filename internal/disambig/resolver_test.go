package disambig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
)

type fakeFinder struct {
	entities map[string][]models.Entity
	err      error
	calls    int
}

func (f *fakeFinder) FindAllByTitleSlug(_ context.Context, base string) ([]models.Entity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entities[base], nil
}

func yr(y int) *int { return &y }

func TestYearSlugNeverDisambiguates(t *testing.T) {
	finder := &fakeFinder{entities: map[string][]models.Entity{
		"dune": {
			{Slug: "dune-1984", Name: "Dune", Year: yr(1984)},
			{Slug: "dune-2021", Name: "Dune", Year: yr(2021)},
		},
	}}
	r := NewResolver(finder, zap.NewNop())

	meta, err := r.Resolve(context.Background(), "dune-2021")
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Zero(t, finder.calls, "exact request must not hit the finder")
}

func TestSingleMatchIsNotAmbiguous(t *testing.T) {
	finder := &fakeFinder{entities: map[string][]models.Entity{
		"inception": {{Slug: "inception-2010", Name: "Inception", Year: yr(2010)}},
	}}
	r := NewResolver(finder, zap.NewNop())

	meta, err := r.Resolve(context.Background(), "inception")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestMultipleMatchesMostRecentFirst(t *testing.T) {
	finder := &fakeFinder{entities: map[string][]models.Entity{
		"dune": {
			{Slug: "dune-1984", Name: "Dune", Year: yr(1984)},
			{Slug: "dune-2021", Name: "Dune", Year: yr(2021)},
			{Slug: "dune", Name: "Dune", Year: nil},
		},
	}}
	r := NewResolver(finder, zap.NewNop())

	meta, err := r.Resolve(context.Background(), "dune")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.Ambiguous)
	require.Len(t, meta.Alternatives, 3)
	assert.Equal(t, "dune-2021", meta.Alternatives[0].Slug)
	assert.Equal(t, "dune-1984", meta.Alternatives[1].Slug)
	assert.Equal(t, "dune", meta.Alternatives[2].Slug, "yearless entity sorts last")
}

func TestNoMatchesIsNotAmbiguous(t *testing.T) {
	r := NewResolver(&fakeFinder{}, zap.NewNop())

	meta, err := r.Resolve(context.Background(), "unknown-title")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestFinderErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	r := NewResolver(&fakeFinder{err: wantErr}, zap.NewNop())

	_, err := r.Resolve(context.Background(), "dune")
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}
