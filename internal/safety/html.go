package safety

import (
	"html"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// maxDecodeIterations bounds entity decoding. Attackers layer
// encodings; legitimate content settles in one or two passes.
const maxDecodeIterations = 5

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	iframeRe     = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
	objectRe     = regexp.MustCompile(`(?is)<object\b.*?</object>`)
	embedRe      = regexp.MustCompile(`(?is)<embed\b.*?</embed>`)
	eventAttrRe  = regexp.MustCompile(`(?i)\s*on\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`)
	jsURIRe      = regexp.MustCompile(`(?i)javascript:`)
	vbURIRe      = regexp.MustCompile(`(?i)vbscript:`)
	dataURIRe    = regexp.MustCompile(`(?i)data:\s*text/html`)
	cssExprRe    = regexp.MustCompile(`(?i)expression\s*\(`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	suspiciousHTMLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)data:\s*text/html`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<object`),
		regexp.MustCompile(`(?i)<embed`),
		regexp.MustCompile(`(?i)<link`),
		regexp.MustCompile(`(?i)<meta`),
		regexp.MustCompile(`(?i)expression\s*\(`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)@import`),
	}
)

// HTMLSanitizer strips markup from AI output. Descriptions are served
// as plain text, so every tag goes; dangerous constructs are removed
// entirely, content included.
type HTMLSanitizer struct {
	logger *zap.Logger
}

// NewHTMLSanitizer creates a sanitizer.
func NewHTMLSanitizer(logger *zap.Logger) *HTMLSanitizer {
	return &HTMLSanitizer{logger: logger}
}

// Sanitize reduces raw to plain text: null bytes removed, entities
// decoded through layered encodings, script/style/iframe/object/embed
// removed with their content, event handlers and script URIs removed,
// remaining tags stripped with inner text kept, whitespace collapsed.
// Dangerous patterns are logged as warnings; sanitization never fails.
func (h *HTMLSanitizer) Sanitize(raw string) string {
	s := strings.ReplaceAll(raw, "\x00", "")

	for i := 0; i < maxDecodeIterations; i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}

	if h.detectSuspicious(s) {
		h.logger.Warn("Suspicious HTML content detected in AI output",
			zap.String("content_preview", preview(s, 200)),
			zap.Int("content_length", len(s)),
		)
	}

	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = iframeRe.ReplaceAllString(s, "")
	s = objectRe.ReplaceAllString(s, "")
	s = embedRe.ReplaceAllString(s, "")
	s = eventAttrRe.ReplaceAllString(s, "")
	s = jsURIRe.ReplaceAllString(s, "")
	s = vbURIRe.ReplaceAllString(s, "")
	s = dataURIRe.ReplaceAllString(s, "")
	s = cssExprRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")

	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func (h *HTMLSanitizer) detectSuspicious(content string) bool {
	for _, re := range suspiciousHTMLPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
