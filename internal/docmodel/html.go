package docmodel

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML parses an HTML page and lays out its <body> with l.
func ParseHTML(r io.Reader, l Layout) (*Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return nil, fmt.Errorf("parse html: no body element")
	}
	return l.Apply(convertHTML(body)), nil
}

// ParseHTMLString is ParseHTML over a string.
func ParseHTMLString(source string, l Layout) (*Tree, error) {
	return ParseHTML(strings.NewReader(source), l)
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func convertHTML(n *html.Node) *Node {
	el := &Node{Kind: ElementNode, Tag: strings.ToLower(n.Data)}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id":
			el.ID = strings.TrimSpace(attr.Val)
		case "class":
			el.Class = attr.Val
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.Append(convertHTML(c))
		case html.TextNode:
			if c.Data != "" {
				el.Append(Text(c.Data))
			}
		}
	}
	return el
}
