package docmodel

import "strings"

const (
	maxPathSteps  = 4
	pathSeparator = " > "
)

// Path builds the short structural path recorded in an anchor: up to four
// `tag` or `tag.firstClass` steps ending at el, stopping below the document
// root. An ancestor carrying an id contributes a `#id` step and ends the walk.
func Path(el *Node) string {
	if el == nil {
		return ""
	}
	var parts []string
	cur := el.Element()
	for i := 0; i < maxPathSteps && cur != nil && cur.Parent != nil; i++ {
		if cur.ID != "" {
			parts = append(parts, "#"+cur.ID)
			break
		}
		part := cur.Tag
		if class := cur.FirstClass(); class != "" {
			part += "." + class
		}
		parts = append(parts, part)
		cur = cur.Parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, pathSeparator)
}

type step struct {
	id    string
	tag   string
	class string
}

func (s step) matches(n *Node) bool {
	if !n.IsElement() {
		return false
	}
	if s.id != "" {
		return n.ID == s.id
	}
	if s.tag != "" && n.Tag != s.tag {
		return false
	}
	if s.class != "" && !n.HasClass(s.class) {
		return false
	}
	return true
}

// Selector is a parsed structural path. Steps are joined by the child
// combinator, outermost first.
type Selector struct {
	steps []step
}

// ParsePath parses a path produced by Path. Malformed input reports false
// instead of failing.
func ParsePath(path string) (Selector, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Selector{}, false
	}
	raw := strings.Split(path, pathSeparator)
	steps := make([]step, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" || strings.ContainsAny(part, " >") {
			return Selector{}, false
		}
		if strings.HasPrefix(part, "#") {
			id := part[1:]
			if id == "" {
				return Selector{}, false
			}
			steps = append(steps, step{id: id})
			continue
		}
		tag, class, hasClass := strings.Cut(part, ".")
		if tag == "" || (hasClass && class == "") {
			return Selector{}, false
		}
		steps = append(steps, step{tag: strings.ToLower(tag), class: class})
	}
	return Selector{steps: steps}, true
}

// Matches reports whether el satisfies the full selector chain.
func (s Selector) Matches(el *Node) bool {
	if len(s.steps) == 0 || el == nil {
		return false
	}
	cur := el
	for i := len(s.steps) - 1; i >= 0; i-- {
		if cur == nil || !s.steps[i].matches(cur) {
			return false
		}
		cur = cur.Parent
	}
	return true
}

// Closest returns the nearest element at or above n that matches s.
func (s Selector) Closest(n *Node) (*Node, bool) {
	if len(s.steps) == 0 || n == nil {
		return nil, false
	}
	return n.Closest(s.Matches)
}
