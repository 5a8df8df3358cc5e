package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrRenderFailed means the span changed between resolution and use.
	ErrRenderFailed = errors.New("render failed")
	ErrDetached     = errors.New("anchor detached")
)

// Highlight is the validated text range a presentation layer wraps.
type Highlight struct {
	Offset     int        `json:"offset"`
	Length     int        `json:"length"`
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
}

// Materialize re-checks m against the live span and extracts the matched
// text. It never mutates the span.
func Materialize(m Match) (Highlight, error) {
	if m.Detached() {
		return Highlight{}, ErrDetached
	}
	runes := []rune(m.Span.Text)
	if m.Offset < 0 || m.Length <= 0 || m.Offset+m.Length > len(runes) {
		return Highlight{}, fmt.Errorf("%w: range %d+%d exceeds span length %d", ErrRenderFailed, m.Offset, m.Length, len(runes))
	}
	return Highlight{
		Offset:     m.Offset,
		Length:     m.Length,
		Text:       string(runes[m.Offset : m.Offset+m.Length]),
		Confidence: m.Confidence,
	}, nil
}
