package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/disambig"
	"github.com/filmatlas/filmatlas/internal/models"
	"github.com/filmatlas/filmatlas/internal/repository"
	"github.com/filmatlas/filmatlas/internal/slug"
)

// RepositoryKind is the production EntityKind: Postgres lookups, the
// disambiguation resolver, and unique slug allocation for entities
// materialized from external verification.
type RepositoryKind struct {
	repo     *repository.EntityRepository
	resolver *disambig.Resolver
	logger   *zap.Logger
}

// NewRepositoryKind builds the capability for one entity kind.
func NewRepositoryKind(repo *repository.EntityRepository, logger *zap.Logger) *RepositoryKind {
	return &RepositoryKind{
		repo:     repo,
		resolver: disambig.NewResolver(repo, logger),
		logger:   logger,
	}
}

func (k *RepositoryKind) EntityType() models.EntityType {
	return k.repo.EntityType()
}

func (k *RepositoryKind) FindExact(ctx context.Context, s string) (*models.Entity, error) {
	return k.repo.FindExact(ctx, s)
}

func (k *RepositoryKind) FindByPrefix(ctx context.Context, base string) ([]models.Entity, error) {
	return k.repo.FindByTitleSlugPrefix(ctx, base)
}

func (k *RepositoryKind) Disambiguate(ctx context.Context, requestedSlug string) (*disambig.Metadata, error) {
	return k.resolver.Resolve(ctx, requestedSlug)
}

// CreateFromExternal materializes a verified canonical record as a
// local entity under a collision-free slug.
func (k *RepositoryKind) CreateFromExternal(ctx context.Context, rec models.CanonicalRecord) (*models.Entity, error) {
	var probeErr error
	exists := func(candidate string) bool {
		if probeErr != nil {
			return false
		}
		ok, err := k.repo.SlugExists(ctx, candidate)
		if err != nil {
			probeErr = err
			return false
		}
		return ok
	}

	s, err := slug.EncodeUnique(rec.Title, rec.Year, exists)
	if probeErr != nil {
		return nil, fmt.Errorf("allocate slug for %q: %w", rec.Title, probeErr)
	}
	if err != nil {
		return nil, err
	}

	entity, err := k.repo.Create(ctx, models.Entity{
		Slug: s,
		Name: rec.Title,
		Year: rec.Year,
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
