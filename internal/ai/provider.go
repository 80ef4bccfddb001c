// Package ai generates entity descriptions. The retrieval and worker
// layers only see the Provider interface; the OpenAI implementation
// and a deterministic static provider live here.
package ai

import (
	"context"

	"github.com/filmatlas/filmatlas/internal/models"
)

// Request describes one description to generate. Name and Overview
// are expected to be pre-sanitized by the caller.
type Request struct {
	EntityType models.EntityType
	Name       string
	Year       *int
	Locale     string
	ContextTag string
	// Reference is the verified canonical record, when one exists. Its
	// overview anchors the prompt so output can be similarity-checked
	// against trusted text.
	Reference *models.CanonicalRecord
}

// Provider produces a description for a request.
type Provider interface {
	GenerateDescription(ctx context.Context, req Request) (string, error)
}
