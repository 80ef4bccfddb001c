package safety

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	punctRe = regexp.MustCompile(`[^\w\s]`)
	wsRe    = regexp.MustCompile(`\s+`)
)

// Similarity scores how alike two texts are, in [0, 1]. It blends word
// overlap (weight 0.6) with normalized Levenshtein distance (0.4):
// overlap catches shared vocabulary, edit distance catches near-verbatim
// copies that overlap alone under-reports.
func Similarity(a, b string) float64 {
	a = normalizeText(a)
	b = normalizeText(b)

	switch {
	case len(a) == 0 && len(b) == 0:
		return 1.0
	case len(a) == 0 || len(b) == 0:
		return 0.0
	}

	wordSim := wordOverlap(a, b)

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	dist := levenshtein.ComputeDistance(a, b)
	levSim := 1.0 - float64(dist)/float64(maxLen)
	levSim = clamp01(levSim)

	return wordSim*0.6 + levSim*0.4
}

// wordOverlap is the Jaccard index over words of three or more
// characters; short stopwords add noise without signal.
func wordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 0.0
	}

	common := 0
	union := len(setB)
	for w := range setA {
		if setB[w] {
			common++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return clamp01(float64(common) / float64(union))
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = wsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
