// Package plausibility gates AI-generation spend: it cheaply rejects
// slugs unlikely to denote a real movie, person, or show before any
// external verification or AI call is made.
package plausibility

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/filmatlas/filmatlas/internal/metrics"
	"github.com/filmatlas/filmatlas/internal/models"
)

const minConfidence = 0.5

// Year bounds for titles. 1888 is the earliest plausible production
// year; the future tolerance admits announced-but-unreleased titles.
const (
	earliestTitleYear   = 1888
	earliestSeriesYear  = 1950
	futureYearTolerance = 3
	earliestBirthYear   = 1850
)

var (
	yearRe        = regexp.MustCompile(`\b(18[89]\d|19\d{2}|20\d{2})\b`)
	randomTokenRe = regexp.MustCompile(`(?i)\b[a-z]{1,3}-\d{2,}\b`)
	digitsOnlyRe  = regexp.MustCompile(`^\d+$`)
	slugShapeRe   = regexp.MustCompile(`(?i)^[a-z0-9-]+$`)
	longDigitsRe  = regexp.MustCompile(`\d{4,}`)
	syntheticRe   = regexp.MustCompile(`(?i)\b(test|random|xyz|abc|123|999|000|fake|dummy|example|sample)\b`)
)

// Decision is the filter's verdict for a slug.
type Decision struct {
	ShouldGenerate bool    `json:"should_generate"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// InjectionDetector reports whether input carries a prompt-injection
// signature. Satisfied by safety.PromptSanitizer.
type InjectionDetector interface {
	DetectInjection(input string) bool
}

// Filter scores slugs. Pure over its configuration and input; the
// clock is injected so year bounds are testable.
type Filter struct {
	detector InjectionDetector
	now      func() time.Time
}

// NewFilter creates a filter using the given injection detector.
func NewFilter(detector InjectionDetector) *Filter {
	return &Filter{detector: detector, now: time.Now}
}

// Check decides whether slug is worth generation budget for the given
// entity type.
func (f *Filter) Check(entityType models.EntityType, slugStr string) Decision {
	d := f.check(entityType, slugStr)
	if !d.ShouldGenerate {
		metrics.PlausibilityRejections.WithLabelValues(string(entityType)).Inc()
	}
	return d
}

func (f *Filter) check(entityType models.EntityType, slugStr string) Decision {
	if f.detector.DetectInjection(slugStr) {
		return Decision{Confidence: 0.0, Reason: "Potential prompt injection detected"}
	}
	if len(slugStr) < 3 {
		return Decision{Confidence: 0.0, Reason: "Slug too short (minimum 3 characters)"}
	}

	conf := f.score(entityType, slugStr)
	if conf.Confidence < minConfidence {
		return Decision{
			Confidence: conf.Confidence,
			Reason:     "Low confidence slug format: " + conf.Reason,
		}
	}

	if reason, ok := f.checkYear(entityType, slugStr); !ok {
		return Decision{Confidence: conf.Confidence, Reason: reason}
	}

	if isSyntheticPattern(slugStr) {
		return Decision{Confidence: conf.Confidence, Reason: "Suspicious slug pattern detected"}
	}

	return Decision{ShouldGenerate: true, Confidence: conf.Confidence, Reason: conf.Reason}
}

// score rates how much the slug shape looks like a real title or name.
func (f *Filter) score(entityType models.EntityType, slugStr string) Decision {
	if entityType == models.EntityPerson {
		return f.scorePerson(slugStr)
	}

	if m := yearRe.FindString(slugStr); m != "" {
		year, _ := strconv.Atoi(m)
		if year >= f.earliestYear(entityType) && year <= f.maxYear() {
			return Decision{Confidence: 0.9, Reason: "Slug contains valid year format (title-year)"}
		}
	}
	if randomTokenRe.MatchString(slugStr) {
		return Decision{Confidence: 0.4, Reason: "Slug format suspicious (random pattern detected)"}
	}
	if digitsOnlyRe.MatchString(slugStr) {
		return Decision{Confidence: 0.1, Reason: "Slug contains only digits"}
	}
	if slugShapeRe.MatchString(slugStr) && len(slugStr) >= 5 {
		return Decision{Confidence: 0.6, Reason: "Slug looks like a title but no year detected"}
	}
	return Decision{Confidence: 0.3, Reason: "Slug does not match expected slug format"}
}

func (f *Filter) scorePerson(slugStr string) Decision {
	if randomTokenRe.MatchString(slugStr) {
		return Decision{Confidence: 0.1, Reason: "Slug format suspicious (random pattern detected)"}
	}
	if digitsOnlyRe.MatchString(slugStr) {
		return Decision{Confidence: 0.1, Reason: "Slug contains only digits"}
	}

	words := len(strings.Split(slugStr, "-"))
	switch {
	case words >= 2 && words <= 4:
		return Decision{Confidence: 0.85, Reason: "Slug matches name format (2-4 words)"}
	case words == 1 && len(slugStr) >= 5:
		return Decision{Confidence: 0.6, Reason: "Slug is a single word (possible mononym)"}
	}
	return Decision{Confidence: 0.3, Reason: "Slug does not match expected name format"}
}

// checkYear validates an embedded year against per-kind bounds. A
// future year past the tolerance is reported distinctly from a year
// below the historical floor.
func (f *Filter) checkYear(entityType models.EntityType, slugStr string) (string, bool) {
	m := yearRe.FindString(slugStr)
	if m == "" {
		return "", true
	}
	year, _ := strconv.Atoi(m)

	if entityType == models.EntityPerson {
		if year < earliestBirthYear {
			return fmt.Sprintf("Invalid birth year: %d (before %d, unlikely to be valid)", year, earliestBirthYear), false
		}
		if year > f.now().Year() {
			return fmt.Sprintf("Invalid birth year: %d (future date, not possible)", year), false
		}
		return "", true
	}

	if year < f.earliestYear(entityType) {
		return fmt.Sprintf("Invalid release year: %d (before %d)", year, f.earliestYear(entityType)), false
	}
	if year > f.maxYear() {
		return fmt.Sprintf("Invalid release year: %d is a future-year violation (more than %d years ahead, max: %d)",
			year, futureYearTolerance, f.maxYear()), false
	}
	return "", true
}

func (f *Filter) earliestYear(entityType models.EntityType) int {
	if entityType == models.EntityTVSeries || entityType == models.EntityTVShow {
		return earliestSeriesYear
	}
	return earliestTitleYear
}

func (f *Filter) maxYear() int {
	return f.now().Year() + futureYearTolerance
}

// isSyntheticPattern flags slugs shaped like test or placeholder data.
// Valid years are removed first so "the-matrix-1999" is not caught by
// the long-digit check.
func isSyntheticPattern(slugStr string) bool {
	withoutYear := yearRe.ReplaceAllString(slugStr, "")
	if syntheticRe.MatchString(withoutYear) {
		return true
	}
	if strings.HasPrefix(strings.ToLower(slugStr), "test-") || strings.HasSuffix(strings.ToLower(slugStr), "-test") {
		return true
	}
	return longDigitsRe.MatchString(withoutYear)
}
