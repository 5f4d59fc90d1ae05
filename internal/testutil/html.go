package testutil

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

// Links parses an HTML fragment and maps each anchor's text to its
// unescaped href. Later anchors with the same text win.
func Links(t *testing.T, fragment string) map[string]string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	out := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var text strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					text.WriteString(c.Data)
				}
			}
			for _, a := range n.Attr {
				if a.Key == "href" {
					out[text.String()] = a.Val
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}
