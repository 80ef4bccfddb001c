// Package slug converts entity titles and disambiguating years to and
// from URL-safe identifiers.
package slug

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSpaceExhausted reports that collision probing hit its safety
// bound. This indicates a configuration or data problem and must be
// surfaced to operators, never retried automatically.
var ErrSpaceExhausted = errors.New("slug space exhausted")

// maxProbes bounds collision probing in EncodeUnique.
const maxProbes = 100

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
	yearSuffixRe   = regexp.MustCompile(`^(.+)-(\d{4})-(\d+)$`)
	yearOnlyRe     = regexp.MustCompile(`^(.+)-(\d{4})$`)
	multiHyphenRe  = regexp.MustCompile(`-{2,}`)
)

// Parsed is the decomposition of a slug.
type Parsed struct {
	Name   string
	Year   *int
	Suffix *int
}

// Make normalizes a title or name into a bare URL-safe token:
// lowercase, non-alphanumerics to hyphens, repeats collapsed.
func Make(name string) string {
	s := strings.ToLower(name)
	s = nonAlnum.ReplaceAllString(s, "-")
	s = multiHyphenRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Encode builds a slug from a name and optional year.
func Encode(name string, year *int) string {
	base := Make(name)
	if year == nil {
		return base
	}
	return fmt.Sprintf("%s-%d", base, *year)
}

// EncodeUnique builds a slug and probes numeric suffixes until exists
// reports the candidate free. The suffix starts at 2 and probing is
// bounded at 100 attempts, after which ErrSpaceExhausted is returned.
func EncodeUnique(name string, year *int, exists func(string) bool) (string, error) {
	candidate := Encode(name, year)
	if !exists(candidate) {
		return candidate, nil
	}

	base := candidate
	for suffix := 2; suffix <= maxProbes; suffix++ {
		candidate = fmt.Sprintf("%s-%d", base, suffix)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no free suffix for %q after %d probes", ErrSpaceExhausted, base, maxProbes)
}

// Decode parses a slug back into name, year, and numeric suffix.
//
// This is a best-effort reverse mapping: a year-less title that itself
// ends in four digits ("blade-runner-2049") decodes as carrying a
// year. Callers compensate with a prefix search against stored slugs;
// the ambiguity is inherent to the format and intentionally not
// "fixed" here.
func Decode(s string) Parsed {
	if m := yearSuffixRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[2])
		suffix, _ := strconv.Atoi(m[3])
		return Parsed{Name: dehyphenate(m[1]), Year: &year, Suffix: &suffix}
	}
	if m := yearOnlyRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[2])
		return Parsed{Name: dehyphenate(m[1]), Year: &year}
	}
	return Parsed{Name: dehyphenate(s)}
}

func dehyphenate(s string) string {
	return strings.ReplaceAll(s, "-", " ")
}
