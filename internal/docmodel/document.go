// Package docmodel is the read-only view of a rendered page that anchor
// capture and resolution consume. Any text source (parsed HTML, markdown,
// ProseMirror JSON, a live browser snapshot) is turned into a Tree, and the
// core only talks to the Document interface.
package docmodel

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// NodeKind distinguishes element nodes from text leaves.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// Node is one element or text leaf of a document tree. A text node is a
// TextSpan; its pointer is the handle a Match refers to and is only stable
// for the resolution pass that produced it.
type Node struct {
	Kind     NodeKind
	Tag      string
	ID       string
	Class    string
	Text     string
	Top      float64
	Parent   *Node
	Children []*Node
}

// Element creates an element node and adopts children.
func Element(tag, id, class string, children ...*Node) *Node {
	n := &Node{Kind: ElementNode, Tag: strings.ToLower(tag), ID: id, Class: class}
	for _, child := range children {
		n.Append(child)
	}
	return n
}

// Text creates a text leaf.
func Text(content string) *Node {
	return &Node{Kind: TextNode, Text: content}
}

// Append adds child as the last child of n.
func (n *Node) Append(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

func (n *Node) IsElement() bool { return n.Kind == ElementNode }
func (n *Node) IsText() bool    { return n.Kind == TextNode }

// Len is the rune length of a text node's content.
func (n *Node) Len() int {
	return utf8.RuneCountInString(n.Text)
}

// Content returns the flattened text of n and its descendants.
func (n *Node) Content() string {
	if n.IsText() {
		return n.Text
	}
	var sb strings.Builder
	n.writeContent(&sb)
	return sb.String()
}

func (n *Node) writeContent(sb *strings.Builder) {
	for _, child := range n.Children {
		if child.IsText() {
			sb.WriteString(child.Text)
			continue
		}
		child.writeContent(sb)
	}
}

// Classes splits the class attribute into tokens.
func (n *Node) Classes() []string {
	return strings.Fields(n.Class)
}

// FirstClass returns the first class token, or "".
func (n *Node) FirstClass() string {
	classes := n.Classes()
	if len(classes) == 0 {
		return ""
	}
	return classes[0]
}

// HasClass reports whether class is one of n's class tokens.
func (n *Node) HasClass(class string) bool {
	for _, c := range n.Classes() {
		if c == class {
			return true
		}
	}
	return false
}

// Element returns the nearest element at or above n.
func (n *Node) Element() *Node {
	if n.IsElement() {
		return n
	}
	return n.Parent
}

// Closest walks n and its ancestors and returns the first element matching fn.
func (n *Node) Closest(fn func(*Node) bool) (*Node, bool) {
	for cur := n.Element(); cur != nil; cur = cur.Parent {
		if fn(cur) {
			return cur, true
		}
	}
	return nil, false
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// PreviousElementSibling returns the closest preceding sibling element.
func (n *Node) PreviousElementSibling() (*Node, bool) {
	if n.Parent == nil {
		return nil, false
	}
	var prev *Node
	for _, sibling := range n.Parent.Children {
		if sibling == n {
			break
		}
		if sibling.IsElement() {
			prev = sibling
		}
	}
	return prev, prev != nil
}

// Descendants yields every node below n in document order.
func (n *Node) Descendants() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walkChildren(yield)
	}
}

func (n *Node) walkChildren(yield func(*Node) bool) bool {
	for _, child := range n.Children {
		if !yield(child) {
			return false
		}
		if !child.walkChildren(yield) {
			return false
		}
	}
	return true
}

// FirstTextSpan returns the first descendant text leaf with non-blank content.
func (n *Node) FirstTextSpan() (*Node, bool) {
	if n.IsText() {
		return n, strings.TrimSpace(n.Text) != ""
	}
	for d := range n.Descendants() {
		if d.IsText() && strings.TrimSpace(d.Text) != "" {
			return d, true
		}
	}
	return nil, false
}

// HeadingLevel returns 1-6 for h1-h6 elements and 0 otherwise.
func (n *Node) HeadingLevel() int {
	if !n.IsElement() || len(n.Tag) != 2 || n.Tag[0] != 'h' {
		return 0
	}
	level := int(n.Tag[1] - '0')
	if level < 1 || level > 6 {
		return 0
	}
	return level
}

// Metrics describes scroll and viewport geometry in page pixels.
type Metrics struct {
	ScrollY        float64 `json:"scrollY"`
	ScrollHeight   float64 `json:"scrollHeight"`
	ViewportHeight float64 `json:"viewportHeight"`
}

// Document is the capability set capture and resolution need. It is read
// only: nothing in this module mutates a Document.
type Document interface {
	// Spans yields every eligible text leaf in document order.
	Spans() iter.Seq[*Node]
	// Elements yields every eligible element accepted by match, in document order.
	Elements(match func(*Node) bool) iter.Seq[*Node]
	// Metrics reports the current scroll offset and extents.
	Metrics() Metrics
	// Excluded reports whether n lives in a presentation-owned subtree.
	Excluded(n *Node) bool
}

// Headings returns eligible h1..h<maxLevel> elements in document order.
func Headings(doc Document, maxLevel int) []*Node {
	var headings []*Node
	for el := range doc.Elements(func(n *Node) bool {
		level := n.HeadingLevel()
		return level > 0 && level <= maxLevel
	}) {
		headings = append(headings, el)
	}
	return headings
}

var landmarkClassHints = []string{"article", "story", "post", "content"}

// IsLandmark reports whether n is a section-like container: article,
// section, or an element whose class mentions article/story/post/content.
func IsLandmark(n *Node) bool {
	if !n.IsElement() {
		return false
	}
	if n.Tag == "article" || n.Tag == "section" {
		return true
	}
	for _, hint := range landmarkClassHints {
		if strings.Contains(n.Class, hint) {
			return true
		}
	}
	return false
}

// Landmarks returns the eligible landmark containers in document order.
func Landmarks(doc Document) []*Node {
	var landmarks []*Node
	for el := range doc.Elements(IsLandmark) {
		landmarks = append(landmarks, el)
	}
	return landmarks
}

// SpanAt returns the i-th eligible span in document order.
func SpanAt(doc Document, i int) (*Node, bool) {
	if i < 0 {
		return nil, false
	}
	idx := 0
	for span := range doc.Spans() {
		if idx == i {
			return span, true
		}
		idx++
	}
	return nil, false
}

// SpanIndex is the inverse of SpanAt.
func SpanIndex(doc Document, target *Node) (int, bool) {
	idx := 0
	for span := range doc.Spans() {
		if span == target {
			return idx, true
		}
		idx++
	}
	return -1, false
}
