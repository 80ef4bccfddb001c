// Package retrieval is the orchestration core: one generic engine
// runs the retrieval state machine for every entity kind and returns
// a closed Result union.
package retrieval

import (
	"encoding/json"
	"fmt"

	"github.com/filmatlas/filmatlas/internal/disambig"
	"github.com/filmatlas/filmatlas/internal/jobs"
	"github.com/filmatlas/filmatlas/internal/models"
)

type resultKind int

const (
	kindInvalid resultKind = iota
	kindCached
	kindFound
	kindVersionNotFound
	kindNotFound
	kindGenerationQueued
	kindDisambiguation
	kindInvalidSlug
)

// FoundPayload is the serializable shape of a successful lookup; it is
// what gets memoized in the cache and replayed as Cached.
type FoundPayload struct {
	Entity         models.Entity       `json:"entity"`
	Version        *models.Description `json:"version,omitempty"`
	Disambiguation *disambig.Metadata  `json:"disambiguation,omitempty"`
}

// Result is a closed tagged union: exactly one variant is active.
// Consumers dispatch through Visit, which covers every variant, so a
// new variant breaks all visitors at compile time instead of being
// swallowed by a default branch.
type Result struct {
	kind       resultKind
	payload    []byte
	found      *FoundPayload
	job        *jobs.QueueResult
	meta       *disambig.Metadata
	reason     string
	confidence float64
}

// Visitor handles every Result variant.
type Visitor interface {
	VisitCached(payload []byte)
	VisitFound(p FoundPayload)
	VisitVersionNotFound()
	VisitNotFound()
	VisitGenerationQueued(job jobs.QueueResult)
	VisitDisambiguation(meta disambig.Metadata)
	VisitInvalidSlug(reason string, confidence float64)
}

// Visit dispatches to the visitor method for the active variant. A
// zero Result violates the exactly-one-variant invariant and panics.
func (r Result) Visit(v Visitor) {
	switch r.kind {
	case kindCached:
		v.VisitCached(r.payload)
	case kindFound:
		v.VisitFound(*r.found)
	case kindVersionNotFound:
		v.VisitVersionNotFound()
	case kindNotFound:
		v.VisitNotFound()
	case kindGenerationQueued:
		v.VisitGenerationQueued(*r.job)
	case kindDisambiguation:
		v.VisitDisambiguation(*r.meta)
	case kindInvalidSlug:
		v.VisitInvalidSlug(r.reason, r.confidence)
	default:
		panic(fmt.Sprintf("retrieval: visit on invalid result kind %d", r.kind))
	}
}

// Variant returns the active variant's name, for logs and metrics.
func (r Result) Variant() string {
	switch r.kind {
	case kindCached:
		return "cached"
	case kindFound:
		return "found"
	case kindVersionNotFound:
		return "version_not_found"
	case kindNotFound:
		return "not_found"
	case kindGenerationQueued:
		return "generation_queued"
	case kindDisambiguation:
		return "disambiguation"
	case kindInvalidSlug:
		return "invalid_slug"
	default:
		return "invalid"
	}
}

// Cached wraps a memoized payload from a previous Found.
func Cached(payload []byte) Result {
	return Result{kind: kindCached, payload: payload}
}

// Found wraps a resolved entity, the selected version if one was
// requested, and disambiguation metadata when the request was
// ambiguous.
func Found(p FoundPayload) Result {
	return Result{kind: kindFound, found: &p}
}

// VersionNotFound reports that the entity exists but the requested
// version does not.
func VersionNotFound() Result {
	return Result{kind: kindVersionNotFound}
}

// NotFound reports that nothing matched and generation is off.
func NotFound() Result {
	return Result{kind: kindNotFound}
}

// GenerationQueued wraps the dispatched or already-in-flight job.
func GenerationQueued(job jobs.QueueResult) Result {
	return Result{kind: kindGenerationQueued, job: &job}
}

// Disambiguation reports multiple external candidates with no single
// best match.
func Disambiguation(meta disambig.Metadata) Result {
	return Result{kind: kindDisambiguation, meta: &meta}
}

// InvalidSlug reports a request rejected before any budget was spent.
func InvalidSlug(reason string, confidence float64) Result {
	return Result{kind: kindInvalidSlug, reason: reason, confidence: confidence}
}

func (p FoundPayload) marshal() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode retrieval payload: %w", err)
	}
	return raw, nil
}
