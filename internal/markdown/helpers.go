package markdown

import "strings"

// Taken from https://core.telegram.org/bots/api#markdownv2-style.
const (
	mdV2SpecialChars = `._[](){}#|!+-=*~>` + "`" + `\`
	mdV2LinkURLChars = `)\`
)

//nolint:gochecknoglobals // Read-only lookup tables.
var (
	textLookup = newLookup(mdV2SpecialChars)
	urlLookup  = newLookup(mdV2LinkURLChars)
)

// EscapeV2 escapes text for a MarkdownV2 message.
func EscapeV2(input string) string {
	return escape(input, &textLookup)
}

// EscapeLinkURL escapes the URL part of an inline link, where only ')' and
// '\' are special.
func EscapeLinkURL(input string) string {
	return escape(input, &urlLookup)
}

// Link formats an inline link with both parts escaped.
func Link(text string, url string) string {
	return "[" + EscapeV2(text) + "](" + EscapeLinkURL(url) + ")"
}

func escape(input string, lookup *[256]bool) string {
	charsToEscape := 0
	for i := range len(input) {
		if lookup[input[i]] {
			charsToEscape++
		}
	}
	if charsToEscape == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input) + charsToEscape)

	for i := range len(input) {
		c := input[i]
		if lookup[c] {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func newLookup(chars string) [256]bool {
	var m [256]bool
	for _, c := range []byte(chars) {
		m[c] = true
	}

	return m
}
