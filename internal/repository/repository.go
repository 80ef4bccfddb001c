// Package repository is the Postgres persistence layer for entities
// and their descriptions. One repository serves one entity kind; the
// kind picks the table.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/models"
)

// tableFor maps an entity type to its table. Unknown types are a
// programming error caught at construction.
var tableFor = map[models.EntityType]string{
	models.EntityMovie:    "movies",
	models.EntityPerson:   "people",
	models.EntityTVSeries: "tv_series",
	models.EntityTVShow:   "tv_shows",
}

// EntityRepository reads and writes one entity kind.
type EntityRepository struct {
	db         *sqlx.DB
	entityType models.EntityType
	table      string
	logger     *zap.Logger
}

// NewEntityRepository creates a repository for the given entity type.
func NewEntityRepository(db *sqlx.DB, entityType models.EntityType, logger *zap.Logger) (*EntityRepository, error) {
	table, ok := tableFor[entityType]
	if !ok {
		return nil, fmt.Errorf("no table for entity type %q", entityType)
	}
	return &EntityRepository{db: db, entityType: entityType, table: table, logger: logger}, nil
}

// EntityType returns the kind this repository serves.
func (r *EntityRepository) EntityType() models.EntityType {
	return r.entityType
}

// FindExact returns the entity with exactly this slug, descriptions
// included, or nil when none exists.
func (r *EntityRepository) FindExact(ctx context.Context, slug string) (*models.Entity, error) {
	query := fmt.Sprintf(
		`SELECT id, slug, name, year, default_description_id, created_at FROM %s WHERE slug = $1`,
		r.table,
	)
	var e models.Entity
	if err := r.db.GetContext(ctx, &e, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s by slug %s: %w", r.table, slug, err)
	}
	e.Type = r.entityType
	if err := r.loadDescriptions(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByID returns the entity with this id, descriptions included, or
// nil when none exists. Generation jobs targeting an existing record
// resolve it by id because the stored slug can differ from the
// requested one after collision probing.
func (r *EntityRepository) FindByID(ctx context.Context, id int64) (*models.Entity, error) {
	query := fmt.Sprintf(
		`SELECT id, slug, name, year, default_description_id, created_at FROM %s WHERE id = $1`,
		r.table,
	)
	var e models.Entity
	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s by id %d: %w", r.table, id, err)
	}
	e.Type = r.entityType
	if err := r.loadDescriptions(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByTitleSlugPrefix returns all entities whose slug is the base or
// a year/suffix extension of it, most recent first. Entities without a
// year sort last.
func (r *EntityRepository) FindByTitleSlugPrefix(ctx context.Context, base string) ([]models.Entity, error) {
	query := fmt.Sprintf(
		`SELECT id, slug, name, year, default_description_id, created_at FROM %s
		 WHERE slug = $1 OR slug LIKE $2
		 ORDER BY year DESC NULLS LAST, created_at DESC`,
		r.table,
	)
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, base, base+"-%"); err != nil {
		return nil, fmt.Errorf("find %s by slug prefix %s: %w", r.table, base, err)
	}
	for i := range entities {
		entities[i].Type = r.entityType
	}
	return entities, nil
}

// FindAllByTitleSlug lists every entity sharing the base slug, for
// disambiguation. Same shape as FindByTitleSlugPrefix; kept separate
// so callers state intent.
func (r *EntityRepository) FindAllByTitleSlug(ctx context.Context, base string) ([]models.Entity, error) {
	return r.FindByTitleSlugPrefix(ctx, base)
}

// SlugExists reports whether any entity of this kind holds the slug.
func (r *EntityRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE slug = $1)`, r.table)
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, slug); err != nil {
		return false, fmt.Errorf("check slug %s: %w", slug, err)
	}
	return exists, nil
}

// Create inserts the entity and returns it with id and created_at
// populated.
func (r *EntityRepository) Create(ctx context.Context, e models.Entity) (models.Entity, error) {
	query := fmt.Sprintf(
		`INSERT INTO %s (slug, name, year) VALUES ($1, $2, $3) RETURNING id, created_at`,
		r.table,
	)
	row := r.db.QueryRowxContext(ctx, query, e.Slug, e.Name, e.Year)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return models.Entity{}, fmt.Errorf("create %s %s: %w", r.table, e.Slug, err)
	}
	e.Type = r.entityType
	r.logger.Info("Entity created",
		zap.String("entity_type", string(r.entityType)),
		zap.String("slug", e.Slug),
		zap.Int64("id", e.ID),
	)
	return e, nil
}

// AddDescription attaches a description to an entity and returns it
// with its generated id.
func (r *EntityRepository) AddDescription(ctx context.Context, d models.Description) (models.Description, error) {
	query := `INSERT INTO descriptions (entity_type, entity_id, locale, text)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, string(r.entityType), d.EntityID, d.Locale, d.Text)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return models.Description{}, fmt.Errorf("add description for %s/%d: %w", r.entityType, d.EntityID, err)
	}
	return d, nil
}

// SetDefaultDescription marks a description as the entity's default.
func (r *EntityRepository) SetDefaultDescription(ctx context.Context, entityID int64, descriptionID string) error {
	query := fmt.Sprintf(`UPDATE %s SET default_description_id = $1 WHERE id = $2`, r.table)
	res, err := r.db.ExecContext(ctx, query, descriptionID, entityID)
	if err != nil {
		return fmt.Errorf("set default description for %s/%d: %w", r.entityType, entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set default description: %s/%d not found", r.entityType, entityID)
	}
	return nil
}

func (r *EntityRepository) loadDescriptions(ctx context.Context, e *models.Entity) error {
	query := `SELECT id, entity_id, locale, text, created_at FROM descriptions
	          WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &e.Descriptions, query, string(r.entityType), e.ID); err != nil {
		return fmt.Errorf("load descriptions for %s/%d: %w", r.entityType, e.ID, err)
	}
	return nil
}
