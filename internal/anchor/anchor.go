// Package anchor describes where a passage of text was when it was
// annotated, and captures that description from a document selection.
package anchor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the two anchor shapes stored with an annotation.
type Kind string

const (
	KindText       Kind = "text"
	KindCoordinate Kind = "coordinate"
)

// Fingerprint is the structural context captured for fallback matching.
type Fingerprint struct {
	NearestHeading   string   `json:"nearestHeading"`
	SurroundingText  string   `json:"surroundingText"`
	NormalizedText   string   `json:"normalizedText"`
	TagName          string   `json:"tagName"`
	WordCount        int      `json:"wordCount"`
	ScrollPercentage *float64 `json:"scrollPercentage,omitempty"`
	SectionIndex     int      `json:"sectionIndex"`
}

// TextAnchor is the serializable description of a selected passage.
type TextAnchor struct {
	Exact       string      `json:"exact"`
	Prefix      string      `json:"prefix"`
	Suffix      string      `json:"suffix"`
	ParentPath  string      `json:"parentSelector"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// CoordinateAnchor is an absolute page position for pin annotations.
type CoordinateAnchor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Anchor is the persisted anchor of an annotation: either a text anchor with
// the literal selection or a coordinate pin.
type Anchor struct {
	Type         Kind
	SelectedText string
	Range        *TextAnchor
	Point        *CoordinateAnchor
}

var ErrUnknownKind = errors.New("unknown anchor type")

func NewText(selectedText string, ta TextAnchor) Anchor {
	return Anchor{Type: KindText, SelectedText: selectedText, Range: &ta}
}

func NewCoordinate(x, y float64) Anchor {
	return Anchor{Type: KindCoordinate, Point: &CoordinateAnchor{X: x, Y: y}}
}

// Text returns the text anchor, if this is one.
func (a Anchor) Text() (TextAnchor, bool) {
	if a.Type != KindText || a.Range == nil {
		return TextAnchor{}, false
	}
	return *a.Range, true
}

// Coordinate returns the pin position, if this is one.
func (a Anchor) Coordinate() (CoordinateAnchor, bool) {
	if a.Type != KindCoordinate || a.Point == nil {
		return CoordinateAnchor{}, false
	}
	return *a.Point, true
}

func (a Anchor) Validate() error {
	switch a.Type {
	case KindText:
		if a.Range == nil || a.Range.Exact == "" {
			return fmt.Errorf("text anchor: %w", ErrEmptySelection)
		}
	case KindCoordinate:
		if a.Point == nil {
			return fmt.Errorf("coordinate anchor: missing position")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Type)
	}
	return nil
}

type textWire struct {
	Type         Kind        `json:"type"`
	SelectedText string      `json:"selectedText"`
	Range        *TextAnchor `json:"range"`
}

type coordinateWire struct {
	Type Kind    `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (a Anchor) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case KindText:
		return json.Marshal(textWire{Type: a.Type, SelectedText: a.SelectedText, Range: a.Range})
	case KindCoordinate:
		var p CoordinateAnchor
		if a.Point != nil {
			p = *a.Point
		}
		return json.Marshal(coordinateWire{Type: a.Type, X: p.X, Y: p.Y})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.Type)
	}
}

func (a *Anchor) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case KindText:
		var w textWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*a = Anchor{Type: KindText, SelectedText: w.SelectedText, Range: w.Range}
	case KindCoordinate:
		var w coordinateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*a = NewCoordinate(w.X, w.Y)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
	return nil
}
