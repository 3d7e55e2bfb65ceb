package normalizer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const droppedElements = "script, style, noscript, template, svg, iframe"

var residualTagRe = regexp.MustCompile(`</?[a-zA-Z!][^<>]*>`)

//nolint:gochecknoglobals // Read-only lookup table.
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "data": true, "dfn": true, "em": true, "i": true, "kbd": true,
	"mark": true, "q": true, "s": true, "samp": true, "small": true, "span": true,
	"strong": true, "sub": true, "sup": true, "time": true, "u": true, "var": true,
	"wbr": true, "font": true,
}

// StripMarkup returns the text content of an HTML fragment. Block elements
// are separated by spaces and escaped tags left in the text are removed.
func StripMarkup(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return residualTagRe.ReplaceAllString(raw, " ")
	}

	doc.Find(droppedElements).Remove()

	return residualTagRe.ReplaceAllString(SelectionText(doc.Selection), " ")
}

// SelectionText joins the text of every node in s, putting a space around
// block-level elements so adjacent paragraphs do not run together.
func SelectionText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeNodeText(&b, n)
	}

	return Collapse(b.String())
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}

	block := n.Type == html.ElementNode && !inlineElements[n.Data]
	if block {
		b.WriteByte(' ')
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}

	if block {
		b.WriteByte(' ')
	}
}
