package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements that never carry notice text.
const noiseSelector = "script, style, noscript, template"

// blockElements end a line in plain text.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true,
	"ul": true, "ol": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Text flattens HTML to plain text: one line per block element, inner
// whitespace collapsed, blank lines dropped.
func Text(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	doc.Find(noiseSelector).Remove()

	var b strings.Builder
	for _, n := range doc.Find("body").Nodes {
		writeText(&b, n)
	}
	return normalizeLines(b.String()), nil
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}

	if n.Type != html.ElementNode {
		return
	}
	switch {
	case blockElements[n.Data]:
		b.WriteByte('\n')
	case n.Data == "td" || n.Data == "th":
		b.WriteByte(' ')
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}
