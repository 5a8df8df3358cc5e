package docmodel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProseMirrorNode represents a node in a ProseMirror document tree
type ProseMirrorNode struct {
	Type    string            `json:"type"`
	Attrs   map[string]any    `json:"attrs"`
	Content []ProseMirrorNode `json:"content"`
	Text    string            `json:"text"`
	Marks   []ProseMirrorMark `json:"marks"`
}

// ProseMirrorMark represents a text mark (formatting)
type ProseMirrorMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

var proseMirrorTags = map[string]string{
	"paragraph":   "p",
	"bulletList":  "ul",
	"orderedList": "ol",
	"listItem":    "li",
	"blockquote":  "blockquote",
	"codeBlock":   "pre",
	"table":       "table",
	"tableRow":    "tr",
	"tableCell":   "td",
	"tableHeader": "th",
	"hardBreak":   "br",
}

var proseMirrorMarkTags = map[string]string{
	"bold":      "strong",
	"italic":    "em",
	"code":      "code",
	"link":      "a",
	"strike":    "s",
	"underline": "u",
}

// ParseProseMirror converts ProseMirror JSON into a laid-out tree rooted at
// a synthetic body element.
func ParseProseMirror(raw []byte, l Layout) (*Tree, error) {
	var doc ProseMirrorNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode prosemirror document: %w", err)
	}
	if doc.Type != "doc" {
		return nil, fmt.Errorf("decode prosemirror document: root type %q", doc.Type)
	}
	body := Element("body", "", "")
	for _, child := range doc.Content {
		if node := convertProseMirror(child); node != nil {
			body.Append(node)
		}
	}
	return l.Apply(body), nil
}

func convertProseMirror(pm ProseMirrorNode) *Node {
	switch pm.Type {
	case "":
		return nil
	case "text":
		return wrapMarks(Text(pm.Text), pm.Marks)
	case "horizontalRule":
		return Element("hr", "", "")
	}

	tag, ok := proseMirrorTags[pm.Type]
	if pm.Type == "heading" {
		tag, ok = fmt.Sprintf("h%d", headingLevel(pm.Attrs)), true
	}
	if !ok {
		// Unknown node types keep their content inside a neutral container.
		tag = "div"
	}
	el := Element(tag, proseMirrorID(pm.Attrs), attrString(pm.Attrs, "class"))
	for _, child := range pm.Content {
		if node := convertProseMirror(child); node != nil {
			el.Append(node)
		}
	}
	return el
}

func wrapMarks(text *Node, marks []ProseMirrorMark) *Node {
	node := text
	for i := len(marks) - 1; i >= 0; i-- {
		tag, ok := proseMirrorMarkTags[marks[i].Type]
		if !ok {
			continue
		}
		node = Element(tag, "", "", node)
	}
	return node
}

func headingLevel(attrs map[string]any) int {
	if lvl, ok := attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
		return int(lvl)
	}
	return 1
}

func proseMirrorID(attrs map[string]any) string {
	for _, key := range []string{"nodeId", "id"} {
		if id := attrString(attrs, key); id != "" {
			return id
		}
	}
	return ""
}

func attrString(attrs map[string]any, key string) string {
	value, _ := attrs[key].(string)
	return strings.TrimSpace(value)
}
