package safety

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/slug"
)

// nameMatchThreshold is the similarity floor below which a generated
// title or name is considered a different entity than the slug asked
// for.
const nameMatchThreshold = 0.6

// MovieData is the structured part of a generated movie payload that
// gets cross-checked against the requested slug.
type MovieData struct {
	Title       string `json:"title"`
	ReleaseYear *int   `json:"release_year,omitempty"`
}

// PersonData is the structured part of a generated person payload.
type PersonData struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year,omitempty"`
}

// DataValidator cross-checks structured AI output against the slug
// that triggered generation: year plausibility, name/slug agreement,
// and slug-year equality. It guards against the AI answering about a
// different entity than the one requested.
type DataValidator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewDataValidator creates a validator.
func NewDataValidator(logger *zap.Logger) *DataValidator {
	return &DataValidator{logger: logger, now: time.Now}
}

// ValidateMovieData checks generated movie data against slugStr.
// The returned Similarity is between the declared title and the
// slug-derived name, for downstream confidence reporting.
func (d *DataValidator) ValidateMovieData(data MovieData, slugStr string) Outcome {
	parsed := slug.Decode(slugStr)
	var out Outcome

	sim := Similarity(data.Title, parsed.Name)
	out.Similarity = &sim

	if data.ReleaseYear != nil {
		year := *data.ReleaseYear
		if year < 1888 || year > d.now().Year()+3 {
			out.Errors = append(out.Errors, fmt.Sprintf("Invalid release year: %d", year))
		}
		if parsed.Year != nil && year != *parsed.Year {
			out.Errors = append(out.Errors,
				fmt.Sprintf("Release year mismatch: slug says %d, generated data says %d", *parsed.Year, year))
		}
	}

	if !namesMatch(data.Title, parsed.Name, sim) {
		out.Errors = append(out.Errors,
			fmt.Sprintf("Generated title %q does not match slug %q", data.Title, slugStr))
	}

	out.Valid = len(out.Errors) == 0
	if !out.Valid {
		d.logger.Warn("Generated movie data failed structural validation",
			zap.String("slug", slugStr),
			zap.String("title", data.Title),
			zap.Strings("errors", out.Errors),
		)
	}
	return out
}

// ValidatePersonData checks generated person data against slugStr.
func (d *DataValidator) ValidatePersonData(data PersonData, slugStr string) Outcome {
	parsed := slug.Decode(slugStr)
	var out Outcome

	sim := Similarity(data.Name, parsed.Name)
	out.Similarity = &sim

	if data.BirthYear != nil {
		year := *data.BirthYear
		if year < 1850 || year > d.now().Year() {
			out.Errors = append(out.Errors, fmt.Sprintf("Invalid birth year: %d", year))
		}
		if parsed.Year != nil && year != *parsed.Year {
			out.Errors = append(out.Errors,
				fmt.Sprintf("Birth year mismatch: slug says %d, generated data says %d", *parsed.Year, year))
		}
	}

	if !namesMatch(data.Name, parsed.Name, sim) {
		out.Errors = append(out.Errors,
			fmt.Sprintf("Generated name %q does not match slug %q", data.Name, slugStr))
	}

	out.Valid = len(out.Errors) == 0
	if !out.Valid {
		d.logger.Warn("Generated person data failed structural validation",
			zap.String("slug", slugStr),
			zap.String("name", data.Name),
			zap.Strings("errors", out.Errors),
		)
	}
	return out
}

// namesMatch is tolerant of case, punctuation, and partial matches
// ("Matrix" vs "the matrix"); full strangers are caught by the
// similarity floor.
func namesMatch(declared, fromSlug string, sim float64) bool {
	a := normalizeText(declared)
	b := normalizeText(fromSlug)
	if a == "" || b == "" {
		return false
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return sim >= nameMatchThreshold
}
