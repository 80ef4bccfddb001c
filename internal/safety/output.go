package safety

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/metrics"
)

var outputSuspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(ignore|forget)\s+(all\s+previous|previous|all)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)(system|user|assistant)\s*:`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)return\s+(all|every|system|environment|secret|key|password|token)`),
}

// Outcome is the result of validating a piece of AI output. Warnings
// never block validity; errors always do. When Valid is false,
// Sanitized is empty.
type Outcome struct {
	Valid      bool     `json:"valid"`
	Sanitized  string   `json:"sanitized,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// OutputValidator runs the full safety pipeline over an AI-generated
// description: HTML sanitization, length bounds, injection and
// suspicious-pattern scanning, and an anti-hallucination similarity
// check against a trusted reference overview.
type OutputValidator struct {
	cfg    Config
	html   *HTMLSanitizer
	prompt *PromptSanitizer
	logger *zap.Logger
}

// NewOutputValidator wires the validator from its two sanitizers.
func NewOutputValidator(cfg Config, html *HTMLSanitizer, prompt *PromptSanitizer, logger *zap.Logger) *OutputValidator {
	return &OutputValidator{cfg: cfg, html: html, prompt: prompt, logger: logger}
}

// ValidateDescription sanitizes and validates a generated description.
// reference, when non-empty, is the trusted source overview used for
// the similarity window: below the low threshold the text is flagged
// as a possible hallucination, above the high threshold as a possible
// verbatim copy. Both are warnings, never errors.
func (v *OutputValidator) ValidateDescription(description, reference string) Outcome {
	var out Outcome

	sanitized := v.html.Sanitize(description)
	length := len(strings.TrimSpace(sanitized))

	if length < v.cfg.MinDescriptionLength {
		out.Errors = append(out.Errors,
			fmt.Sprintf("Description too short: %d characters (minimum: %d)", length, v.cfg.MinDescriptionLength))
	}
	if length > v.cfg.MaxDescriptionLength {
		out.Errors = append(out.Errors,
			fmt.Sprintf("Description too long: %d characters (maximum: %d)", length, v.cfg.MaxDescriptionLength))
	}

	if v.prompt.DetectInjection(sanitized) {
		out.Warnings = append(out.Warnings, "Potential AI injection detected in output")
		metrics.OutputValidationWarnings.WithLabelValues("injection").Inc()
		v.logger.Warn("AI injection detected in AI output",
			zap.String("description_preview", preview(sanitized, 200)),
			zap.Int("description_length", length),
		)
	}

	if reference != "" {
		sim := Similarity(sanitized, reference)
		out.Similarity = &sim

		if sim > v.cfg.MaxSimilarity {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("Description too similar to reference overview (similarity: %.2f) - may not be original", sim))
			metrics.OutputValidationWarnings.WithLabelValues("too_similar").Inc()
		}
		if sim < v.cfg.MinSimilarity {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("Description too different from reference overview (similarity: %.2f) - possible hallucination", sim))
			metrics.OutputValidationWarnings.WithLabelValues("too_different").Inc()
		}
	}

	if containsSuspiciousOutputPattern(sanitized) {
		out.Warnings = append(out.Warnings, "Suspicious patterns detected in description")
		metrics.OutputValidationWarnings.WithLabelValues("suspicious_pattern").Inc()
	}

	out.Valid = len(out.Errors) == 0
	if out.Valid {
		out.Sanitized = sanitized
	} else {
		metrics.OutputValidationFailures.Inc()
	}
	return out
}

// containsSuspiciousOutputPattern scans for prompt-like fragments
// reappearing inside generated text (a role marker leaking through,
// an instruction-override phrase). The list is narrower than the
// input deny-list because generated prose legitimately uses words
// like "reveal".
func containsSuspiciousOutputPattern(description string) bool {
	lower := strings.ToLower(description)
	for _, re := range outputSuspiciousPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
