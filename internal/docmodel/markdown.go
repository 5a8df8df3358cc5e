package docmodel

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

// ParseMarkdown renders markdown to HTML with goldmark and parses the result.
func ParseMarkdown(source []byte, l Layout) (*Tree, error) {
	var buf bytes.Buffer
	if err := goldmark.New().Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return ParseHTML(&buf, l)
}
