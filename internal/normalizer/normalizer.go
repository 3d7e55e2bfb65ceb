package normalizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	TruncationMarker = "..."

	DefaultContentMaxLen       = 10000
	DefaultSummaryMaxLen       = 1000
	DefaultSummaryMaxSentences = 4

	// maxStalledPasses bounds passes that change the text without making it
	// shorter. Every other changing pass strictly shrinks it.
	maxStalledPasses = 4
)

var (
	markdownEmphasisRe = regexp.MustCompile("[*`]+")
	markdownHeadingRe  = regexp.MustCompile(`(^|\s)#{1,6}\s+`)

	boilerplatePrefixRe = regexp.MustCompile(
		`(?i)^\s*(?:sure[,!.]?\s+)?` +
			`(?:here(?:'s| is) (?:a |an |the )?(?:concise |brief |short )?summary` +
			`(?: of (?:the|this) (?:text|article|post|content|story))?` +
			`|summary|tl;?dr)\s*[:\-–.]\s*`,
	)
	boilerplateSuffixRe = regexp.MustCompile(
		`(?i)\s*(?:let me know if[^.!?]*[.!?]?|i hope this helps[^.!?]*[.!?]?)\s*$`,
	)
)

type Config struct {
	ContentMaxLen       int
	SummaryMaxLen       int
	SummaryMaxSentences int
	Lowercase           bool
}

// Normalizer turns raw content and model output into bounded plain text.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	if cfg.ContentMaxLen <= 0 {
		cfg.ContentMaxLen = DefaultContentMaxLen
	}
	if cfg.SummaryMaxLen <= 0 {
		cfg.SummaryMaxLen = DefaultSummaryMaxLen
	}
	if cfg.SummaryMaxSentences <= 0 {
		cfg.SummaryMaxSentences = DefaultSummaryMaxSentences
	}

	return &Normalizer{cfg: cfg}
}

func (n *Normalizer) ContentMaxLen() int {
	return n.cfg.ContentMaxLen
}

func (n *Normalizer) SummaryMaxLen() int {
	return n.cfg.SummaryMaxLen
}

// Preprocess strips markup, collapses whitespace and truncates to
// ContentMaxLen runes. Empty input yields an empty string.
func (n *Normalizer) Preprocess(raw string) string {
	if raw == "" {
		return ""
	}

	text := Collapse(StripMarkup(raw))
	if n.cfg.Lowercase {
		text = strings.ToLower(text)
	}

	return Truncate(text, n.cfg.ContentMaxLen)
}

// Postprocess cleans generated summary text. It is applied until the text
// stops changing, so Postprocess(Postprocess(x)) == Postprocess(x).
func (n *Normalizer) Postprocess(summary string) string {
	current := summary
	stalled := 0
	for {
		next := n.postprocessOnce(current)
		if next == current {
			return current
		}
		if len(next) >= len(current) {
			stalled++
			if stalled > maxStalledPasses {
				return next
			}
		}
		current = next
	}
}

// postprocessOnce applies every rule until that rule alone stops changing
// the text, so nested prefixes and entities settle in a single pass.
func (n *Normalizer) postprocessOnce(s string) string {
	s = Collapse(settle(s, StripMarkup))
	s = markdownEmphasisRe.ReplaceAllString(s, "")
	s = markdownHeadingRe.ReplaceAllString(s, "$1")
	s = Collapse(s)
	s = settle(s, func(v string) string { return boilerplatePrefixRe.ReplaceAllString(v, "") })
	s = settle(s, func(v string) string { return boilerplateSuffixRe.ReplaceAllString(v, "") })
	s = limitSentences(s, n.cfg.SummaryMaxSentences)

	return Truncate(strings.TrimSpace(s), n.cfg.SummaryMaxLen)
}

// settle applies fn while it keeps shrinking s.
func settle(s string, fn func(string) string) string {
	for {
		next := fn(s)
		if next == s || len(next) >= len(s) {
			return next
		}
		s = next
	}
}

func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most maxLen runes, ending with TruncationMarker
// when anything was removed.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}

	runes := []rune(s)
	markerLen := utf8.RuneCountInString(TruncationMarker)
	if maxLen <= markerLen {
		return string(runes[:maxLen])
	}

	cut := strings.TrimRightFunc(string(runes[:maxLen-markerLen]), unicode.IsSpace)

	return cut + TruncationMarker
}

// limitSentences keeps the first maxSentences sentences. A sentence ends
// with a run of '.', '!' or '?' followed by whitespace or end of text.
func limitSentences(s string, maxSentences int) string {
	if maxSentences <= 0 {
		return s
	}

	count := 0
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}

		end := i
		for end+1 < len(runes) && isTerminator(runes[end+1]) {
			end++
		}
		i = end

		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			continue
		}

		count++
		if count == maxSentences {
			return string(runes[:end+1])
		}
	}

	return s
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
