package docmodel

import "iter"

// Exclusion names the subtrees a Tree hides from capture and resolution.
type Exclusion struct {
	IDs     []string
	Classes []string
	Tags    []string
}

// DefaultExclusion hides the annotation overlay and non-rendered elements.
var DefaultExclusion = Exclusion{
	IDs: []string{
		"lens-selection-toolbar",
		"lens-modal-overlay",
		"lens-annotation-trigger",
		"lens-detached-sidebar",
		"lens-reanchor-banner",
		"lens-pm-overlay",
	},
	Classes: []string{
		"lens-annotation-card",
		"lens-annotation-pin",
		"lens-text-highlight",
	},
	Tags: []string{"script", "style", "noscript", "template"},
}

func (e Exclusion) matches(n *Node) bool {
	if !n.IsElement() {
		return false
	}
	for _, tag := range e.Tags {
		if n.Tag == tag {
			return true
		}
	}
	if n.ID != "" {
		for _, id := range e.IDs {
			if n.ID == id {
				return true
			}
		}
	}
	for _, class := range e.Classes {
		if n.HasClass(class) {
			return true
		}
	}
	return false
}

// Tree is an in-memory Document. Root plays the role of <body>.
type Tree struct {
	Root      *Node
	Exclusion Exclusion
	metrics   Metrics
}

// NewTree wraps root, fixing up parent links, with DefaultExclusion.
func NewTree(root *Node, metrics Metrics) *Tree {
	link(root)
	return &Tree{Root: root, Exclusion: DefaultExclusion, metrics: metrics}
}

func link(n *Node) {
	for _, child := range n.Children {
		child.Parent = n
		link(child)
	}
}

// Metrics implements Document.
func (t *Tree) Metrics() Metrics { return t.metrics }

// SetScrollY moves the scroll offset, as a reader scrolling the page would.
func (t *Tree) SetScrollY(y float64) { t.metrics.ScrollY = y }

// Excluded implements Document.
func (t *Tree) Excluded(n *Node) bool {
	for cur := n.Element(); cur != nil; cur = cur.Parent {
		if t.Exclusion.matches(cur) {
			return true
		}
		if cur == t.Root {
			break
		}
	}
	return false
}

// Spans implements Document. Traversal is a depth-first pre-order walk with
// children in source order; excluded subtrees are skipped whole.
func (t *Tree) Spans() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		t.walk(t.Root, func(n *Node) bool {
			if n.IsText() && n.Text != "" {
				return yield(n)
			}
			return true
		})
	}
}

// Elements implements Document.
func (t *Tree) Elements(match func(*Node) bool) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		t.walk(t.Root, func(n *Node) bool {
			if n.IsElement() && n != t.Root && match(n) {
				return yield(n)
			}
			return true
		})
	}
}

func (t *Tree) walk(n *Node, visit func(*Node) bool) bool {
	if n == nil || t.Exclusion.matches(n) {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, child := range n.Children {
		if !t.walk(child, visit) {
			return false
		}
	}
	return true
}
