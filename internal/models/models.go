// Package models holds the entity rows served by the retrieval engine.
package models

import "time"

// EntityType identifies the kind of entity a request targets. It is
// part of the generation-slot fingerprint and of cache keys.
type EntityType string

const (
	EntityMovie    EntityType = "MOVIE"
	EntityPerson   EntityType = "PERSON"
	EntityTVSeries EntityType = "TV_SERIES"
	EntityTVShow   EntityType = "TV_SHOW"
)

// Entity is the common shape the retrieval engine works with. Year is
// the release year for titles and the birth year for people.
type Entity struct {
	ID                   int64      `db:"id" json:"id"`
	Type                 EntityType `db:"-" json:"type"`
	Slug                 string     `db:"slug" json:"slug"`
	Name                 string     `db:"name" json:"name"`
	Year                 *int       `db:"year" json:"year,omitempty"`
	DefaultDescriptionID *string    `db:"default_description_id" json:"default_description_id,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	Descriptions         []Description `db:"-" json:"descriptions,omitempty"`
}

// Description is one generated (or imported) text version attached to
// an entity. Entities can carry several; one is the default.
type Description struct {
	ID        string    `db:"id" json:"id"`
	EntityID  int64     `db:"entity_id" json:"entity_id"`
	Locale    string    `db:"locale" json:"locale"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DescriptionByID returns the description with the given id, or nil.
func (e *Entity) DescriptionByID(id string) *Description {
	for i := range e.Descriptions {
		if e.Descriptions[i].ID == id {
			return &e.Descriptions[i]
		}
	}
	return nil
}

// CanonicalRecord is what the external verification provider returns
// for a confirmed entity.
type CanonicalRecord struct {
	ExternalID int64  `json:"external_id"`
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	Overview   string `json:"overview,omitempty"`
}
