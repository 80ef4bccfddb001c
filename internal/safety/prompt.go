// Package safety validates and sanitizes everything that flows into or
// out of the AI generation step: caller-supplied slugs, third-party
// metadata text, and generated descriptions.
package safety

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/filmatlas/filmatlas/internal/metrics"
)

// ErrInputRejected reports hostile caller input (injection signature
// or an oversized slug). Never retried.
var ErrInputRejected = errors.New("input rejected")

// Config carries the pipeline's tunable bounds.
type Config struct {
	MaxSlugLength        int
	MaxTextLength        int
	MinDescriptionLength int
	MaxDescriptionLength int
	// Similarity window for the anti-hallucination check. Shipped
	// constants, not corpus-derived; recalibrate before relying on
	// them for anything stronger than warnings.
	MinSimilarity float64
	MaxSimilarity float64
}

// DefaultConfig mirrors the bounds the heuristics were tuned with.
func DefaultConfig() Config {
	return Config{
		MaxSlugLength:        255,
		MaxTextLength:        10000,
		MinDescriptionLength: 50,
		MaxDescriptionLength: 5000,
		MinSimilarity:        0.3,
		MaxSimilarity:        0.95,
	}
}

// injectionPatterns are signatures of prompt-injection attempts,
// matched case-insensitively. Hyphens are treated like spaces because
// the inputs are slugs.
var injectionPatterns = []*regexp.Regexp{
	// Instruction-override phrases
	regexp.MustCompile(`(?i)(ignore|forget|disregard)[\s-]+(all[\s-]+previous|previous|all)[\s-]+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)(override|bypass)[\s-]+(system|previous|all)`),
	regexp.MustCompile(`(?i)(system|previous|all)[\s-]+(override|bypass)`),

	// Role-spoofing markers
	regexp.MustCompile(`(?i)(system|user|assistant|role)[\s-]*:`),

	// Jailbreak phrases
	regexp.MustCompile(`(?i)you[\s-]+(are|must)[\s-]+now`),
	regexp.MustCompile(`(?i)developer[\s-]+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)(escape|unrestricted)[\s-]+mode`),

	// Data-exfiltration phrases
	regexp.MustCompile(`(?i)return[\s-]+(all|every|system|environment|secret|key|password|token|credential)`),
	regexp.MustCompile(`(?i)(exfiltrate|leak|reveal|expose|dump)`),
	regexp.MustCompile(`(?i)show[\s-]+(all|every|system|environment|secret|key|password|token)`),

	// Command/eval patterns
	regexp.MustCompile(`(?i)(execute|run)[\s-]+(command|code|script)`),
	regexp.MustCompile(`(?i)(eval|system|exec)\s*\(`),

	// Prompt manipulation
	regexp.MustCompile(`(?i)(new|different|alternative)[\s-]+instructions?`),
	regexp.MustCompile(`(?i)change[\s-]+(role|instructions?|prompt)`),
}

// PromptSanitizer cleans untrusted strings before they reach an AI
// prompt and detects injection attempts.
type PromptSanitizer struct {
	cfg    Config
	logger *zap.Logger
}

// NewPromptSanitizer creates a sanitizer with the given bounds.
func NewPromptSanitizer(cfg Config, logger *zap.Logger) *PromptSanitizer {
	return &PromptSanitizer{cfg: cfg, logger: logger}
}

// SanitizeSlug strips control characters and rejects oversized slugs
// and injection signatures. Slugs are caller-controlled, so a
// signature match here is always hostile and fails the request.
func (p *PromptSanitizer) SanitizeSlug(slugStr string) (string, error) {
	cleaned := stripControl(slugStr, "")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > p.cfg.MaxSlugLength {
		return "", fmt.Errorf("%w: slug too long (max %d characters)", ErrInputRejected, p.cfg.MaxSlugLength)
	}

	if p.DetectInjection(cleaned) {
		p.logInjection("slug", cleaned)
		return "", fmt.Errorf("%w: potential prompt injection detected in slug", ErrInputRejected)
	}

	return cleaned, nil
}

// SanitizeText cleans semi-trusted external text (e.g. provider
// overviews). An injection signature is logged but does not fail:
// upstream data sources produce false positives, and the asymmetry
// with SanitizeSlug is intentional.
func (p *PromptSanitizer) SanitizeText(text string) string {
	cleaned := stripControl(text, " ")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > p.cfg.MaxTextLength {
		cleaned = cleaned[:p.cfg.MaxTextLength]
	}

	if p.DetectInjection(cleaned) {
		p.logInjection("text", cleaned)
	}

	return cleaned
}

// DetectInjection reports whether input matches any injection
// signature.
func (p *PromptSanitizer) DetectInjection(input string) bool {
	lower := strings.ToLower(input)
	for _, re := range injectionPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func (p *PromptSanitizer) logInjection(inputType, input string) {
	metrics.InjectionDetections.WithLabelValues(inputType).Inc()
	p.logger.Warn("Prompt injection detected",
		zap.String("type", inputType),
		zap.String("input_preview", preview(input, 200)),
		zap.Int("input_length", len(input)),
	)
}

func stripControl(s, replacement string) string {
	r := strings.NewReplacer("\n", replacement, "\r", replacement, "\t", replacement)
	return r.Replace(s)
}

// preview truncates s to at most n bytes without splitting a rune, so
// log output stays valid UTF-8.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
