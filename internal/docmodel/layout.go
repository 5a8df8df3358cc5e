package docmodel

import (
	"strings"
	"unicode/utf8"
)

// Layout is a deterministic flow model that assigns page-relative vertical
// positions to a tree that was not produced by a real renderer.
type Layout struct {
	LineHeight     float64
	CharsPerLine   int
	BlockMargin    float64
	ViewportHeight float64
	ScrollY        float64
}

// DefaultLayout approximates a desktop reading column.
var DefaultLayout = Layout{
	LineHeight:     20,
	CharsPerLine:   90,
	BlockMargin:    8,
	ViewportHeight: 900,
}

var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "dd": {},
	"details": {}, "dialog": {}, "div": {}, "dl": {}, "dt": {},
	"fieldset": {}, "figcaption": {}, "figure": {}, "footer": {}, "form": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {},
	"p": {}, "pre": {}, "section": {}, "table": {}, "tr": {}, "td": {},
	"th": {}, "ul": {}, "summary": {},
}

// IsBlock reports whether tag starts a new line in flow layout.
func IsBlock(tag string) bool {
	_, ok := blockTags[tag]
	return ok
}

func (l Layout) withDefaults() Layout {
	if l.LineHeight <= 0 {
		l.LineHeight = DefaultLayout.LineHeight
	}
	if l.CharsPerLine <= 0 {
		l.CharsPerLine = DefaultLayout.CharsPerLine
	}
	if l.BlockMargin < 0 {
		l.BlockMargin = 0
	}
	if l.ViewportHeight <= 0 {
		l.ViewportHeight = DefaultLayout.ViewportHeight
	}
	return l
}

// Apply positions every node under root and returns a Tree whose metrics
// reflect the laid-out height.
func (l Layout) Apply(root *Node) *Tree {
	l = l.withDefaults()
	link(root)
	f := &flow{layout: l}
	f.place(root)
	f.breakLine()
	height := max(f.y, l.ViewportHeight)
	return NewTree(root, Metrics{
		ScrollY:        min(max(l.ScrollY, 0), height),
		ScrollHeight:   height,
		ViewportHeight: l.ViewportHeight,
	})
}

type flow struct {
	layout Layout
	y      float64
	col    int
}

func (f *flow) breakLine() {
	if f.col > 0 {
		f.y += f.layout.LineHeight
		f.col = 0
	}
}

func (f *flow) place(n *Node) {
	if n.IsText() {
		n.Top = f.y
		words := strings.Fields(n.Text)
		if len(words) == 0 {
			return
		}
		f.col += utf8.RuneCountInString(strings.Join(words, " "))
		for f.col > f.layout.CharsPerLine {
			f.y += f.layout.LineHeight
			f.col -= f.layout.CharsPerLine
		}
		return
	}

	block := IsBlock(n.Tag)
	if block {
		f.breakLine()
		f.y += f.layout.BlockMargin
	}
	n.Top = f.y
	if n.Tag == "br" {
		f.col = 1
		f.breakLine()
	}
	for _, child := range n.Children {
		f.place(child)
	}
	if block {
		f.breakLine()
		f.y += f.layout.BlockMargin
	}
}
