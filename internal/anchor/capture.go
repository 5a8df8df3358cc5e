package anchor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"lens/api/internal/docmodel"
	"lens/api/internal/similarity"
)

const (
	contextLen         = 64
	headingLen         = 120
	headingWalkSteps   = 20
	surroundingSide    = 200
	surroundingCap     = 400
	scrollPrecision    = 1000
	maxStructuralLevel = 4
	maxFallbackLevel   = 3
)

var (
	// ErrEmptySelection aborts capture; callers must not persist an anchor.
	ErrEmptySelection   = errors.New("empty selection")
	ErrInvalidSelection = errors.New("invalid selection")
)

// Selection is a range between two text spans of a Document, in rune offsets.
type Selection struct {
	Start       *docmodel.Node
	StartOffset int
	End         *docmodel.Node
	EndOffset   int
}

func (s Selection) validate(doc docmodel.Document) error {
	if s.Start == nil || s.End == nil || !s.Start.IsText() || !s.End.IsText() {
		return fmt.Errorf("%w: endpoints must be text spans", ErrInvalidSelection)
	}
	if s.StartOffset < 0 || s.StartOffset > s.Start.Len() {
		return fmt.Errorf("%w: start offset %d outside span of length %d", ErrInvalidSelection, s.StartOffset, s.Start.Len())
	}
	if s.EndOffset < 0 || s.EndOffset > s.End.Len() {
		return fmt.Errorf("%w: end offset %d outside span of length %d", ErrInvalidSelection, s.EndOffset, s.End.Len())
	}
	if doc.Excluded(s.Start) || doc.Excluded(s.End) {
		return fmt.Errorf("%w: selection inside annotation overlay", ErrInvalidSelection)
	}
	return nil
}

// Capture builds a TextAnchor for sel, whose literal text is selectedText.
// It reads doc only.
func Capture(doc docmodel.Document, sel Selection, selectedText string) (TextAnchor, error) {
	if strings.TrimSpace(selectedText) == "" {
		return TextAnchor{}, ErrEmptySelection
	}
	if err := sel.validate(doc); err != nil {
		return TextAnchor{}, err
	}

	start := []rune(sel.Start.Text)
	end := []rune(sel.End.Text)
	el := sel.Start.Parent

	return TextAnchor{
		Exact:       selectedText,
		Prefix:      string(start[max(0, sel.StartOffset-contextLen):sel.StartOffset]),
		Suffix:      string(end[sel.EndOffset:min(sel.EndOffset+contextLen, len(end))]),
		ParentPath:  docmodel.Path(el),
		Fingerprint: fingerprint(doc, el, selectedText),
	}, nil
}

func fingerprint(doc docmodel.Document, el *docmodel.Node, selectedText string) Fingerprint {
	scroll := scrollPercentage(doc.Metrics())
	fp := Fingerprint{
		NearestHeading:   nearestHeading(doc, el),
		SurroundingText:  surroundingText(el, selectedText),
		NormalizedText:   similarity.Normalize(selectedText),
		TagName:          "unknown",
		WordCount:        len(strings.Fields(selectedText)),
		ScrollPercentage: &scroll,
		SectionIndex:     sectionIndex(doc, el),
	}
	if el != nil {
		fp.TagName = el.Tag
	}
	return fp
}

func isStructuralHeading(n *docmodel.Node) bool {
	level := n.HeadingLevel()
	return level > 0 && level <= maxStructuralLevel
}

// nearestHeading walks up from el, checking each step's previous element
// sibling (or its parent when there is none) for a heading, then falls back
// to the h1-h3 closest to el vertically.
func nearestHeading(doc docmodel.Document, el *docmodel.Node) string {
	cursor := el
	for i := 0; i < headingWalkSteps && cursor != nil && cursor.Parent != nil; i++ {
		prev, ok := cursor.PreviousElementSibling()
		if !ok {
			prev = cursor.Parent
		}
		if h, ok := headingAtOrBelow(prev); ok {
			return clip(strings.TrimSpace(h.Content()), headingLen)
		}
		cursor = cursor.Parent
	}
	if el == nil {
		return ""
	}

	var best *docmodel.Node
	bestDist := math.Inf(1)
	for _, h := range docmodel.Headings(doc, maxFallbackLevel) {
		if dist := math.Abs(h.Top - el.Top); dist < bestDist {
			best, bestDist = h, dist
		}
	}
	if best == nil {
		return ""
	}
	return clip(strings.TrimSpace(best.Content()), headingLen)
}

func headingAtOrBelow(n *docmodel.Node) (*docmodel.Node, bool) {
	if isStructuralHeading(n) {
		return n, true
	}
	for d := range n.Descendants() {
		if isStructuralHeading(d) {
			return d, true
		}
	}
	return nil, false
}

func surroundingText(el *docmodel.Node, selectedText string) string {
	if el == nil {
		return ""
	}
	full := []rune(el.Content())
	idx := RuneIndex(string(full), selectedText)
	var window []rune
	if idx >= 0 {
		endIdx := idx + utf8.RuneCountInString(selectedText) + surroundingSide
		window = full[max(0, idx-surroundingSide):min(len(full), endIdx)]
	} else {
		window = full[:min(len(full), surroundingCap)]
	}
	return clip(string(window), surroundingCap)
}

func scrollPercentage(m docmodel.Metrics) float64 {
	pct := math.Round(m.ScrollY/math.Max(m.ScrollHeight, 1)*scrollPrecision) / scrollPrecision
	return math.Min(math.Max(pct, 0), 1)
}

func sectionIndex(doc docmodel.Document, el *docmodel.Node) int {
	idx := 0
	if el == nil {
		return idx
	}
	for i, landmark := range docmodel.Landmarks(doc) {
		if landmark.Contains(el) {
			idx = i
		}
	}
	return idx
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// RuneIndex is strings.Index measured in runes; -1 when sub is absent.
func RuneIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:i])
}

// FindSelection selects the first literal occurrence of quote that lies
// inside a single span.
func FindSelection(doc docmodel.Document, quote string) (Selection, bool) {
	if quote == "" {
		return Selection{}, false
	}
	n := utf8.RuneCountInString(quote)
	for span := range doc.Spans() {
		if idx := RuneIndex(span.Text, quote); idx >= 0 {
			return Selection{Start: span, StartOffset: idx, End: span, EndOffset: idx + n}, true
		}
	}
	return Selection{}, false
}

// SelectedText returns the literal text covered by sel, walking spans in
// document order from Start to End.
func SelectedText(doc docmodel.Document, sel Selection) (string, error) {
	if err := sel.validate(doc); err != nil {
		return "", err
	}
	if sel.Start == sel.End {
		if sel.EndOffset < sel.StartOffset {
			return "", fmt.Errorf("%w: end precedes start", ErrInvalidSelection)
		}
		return string([]rune(sel.Start.Text)[sel.StartOffset:sel.EndOffset]), nil
	}

	var sb strings.Builder
	inside := false
	for span := range doc.Spans() {
		runes := []rune(span.Text)
		switch {
		case span == sel.Start:
			inside = true
			sb.WriteString(string(runes[sel.StartOffset:]))
		case span == sel.End:
			if !inside {
				return "", fmt.Errorf("%w: end precedes start", ErrInvalidSelection)
			}
			sb.WriteString(string(runes[:sel.EndOffset]))
			return sb.String(), nil
		case inside:
			sb.WriteString(span.Text)
		}
	}
	return "", fmt.Errorf("%w: endpoints not found in document", ErrInvalidSelection)
}
