// Package resolver relocates a captured TextAnchor in the current state of a
// document. Layers run in priority order and the first acceptable result
// wins:
//
//  1. exact occurrences of the quote, ranked by surrounding context
//  2. fuzzy sliding-window match over every span
//  3. structural match of the containing block by fingerprint
//  4. position fallback from the captured scroll percentage
//  5. detached
//
// A Resolver holds options only; Resolve keeps no state between calls and
// never mutates the document.
package resolver

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"lens/api/internal/anchor"
	"lens/api/internal/docmodel"
	"lens/api/internal/similarity"
)

type Confidence string

const (
	Exact      Confidence = "exact"
	Fuzzy      Confidence = "fuzzy"
	Structural Confidence = "structural"
	Positional Confidence = "positional"
	Detached   Confidence = "detached"
)

// Rank orders confidence levels, higher is more trusted.
func (c Confidence) Rank() int {
	switch c {
	case Exact:
		return 4
	case Fuzzy:
		return 3
	case Structural:
		return 2
	case Positional:
		return 1
	default:
		return 0
	}
}

// Match is the transient result of one resolution pass. Span is only valid
// against the document the pass ran on.
type Match struct {
	Span       *docmodel.Node
	Offset     int
	Length     int
	Confidence Confidence
	Score      float64
}

func (m Match) Detached() bool {
	return m.Confidence == Detached || m.Span == nil
}

const (
	prefixExactWindow  = 32
	prefixTailLen      = 16
	suffixExactWindow  = 32
	suffixHeadLen      = 16
	suffixContainsSpan = 16
	prefixScore        = 4
	prefixNearScore    = 2
	suffixScore        = 4
	suffixNearScore    = 2
	parentPathScore    = 3

	fuzzyThreshold    = 0.72
	fuzzyWindowGrowth = 0.3
	fuzzyMinCoverage  = 0.5

	structuralThreshold     = 0.5
	structuralTextWeight    = 5
	structuralHeadingWeight = 4
	structuralTagBonus      = 1
	structuralTextLimit     = 500
	structuralKeyLen        = 20
	structuralHeadingLevel  = 4

	positionalViewportFactor = 1.5
)

// Options bound the expensive layers. Zero values disable the bound.
type Options struct {
	// MaxNodes caps the spans plus blocks visited by Layers 2 and 3.
	MaxNodes int
	// Timeout caps wall-clock time spent in Layers 2 and 3.
	Timeout time.Duration
}

var DefaultOptions = Options{MaxNodes: 50_000, Timeout: 500 * time.Millisecond}

type Resolver struct {
	opts Options
}

func New(opts Options) *Resolver {
	return &Resolver{opts: opts}
}

func detached() Match {
	return Match{Confidence: Detached}
}

// Resolve finds the best current location of ta in doc. It always returns a
// Match; a Detached match is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, doc docmodel.Document, ta anchor.TextAnchor) Match {
	if ta.Exact == "" {
		return detached()
	}

	var spans []*docmodel.Node
	for span := range doc.Spans() {
		spans = append(spans, span)
	}

	if m, ok := exactMatch(spans, ta); ok {
		return m
	}

	b := newBudget(ctx, r.opts)
	if m, ok := fuzzyMatch(spans, ta.Exact, b); ok {
		return m
	}
	if m, ok := structuralMatch(doc, ta, b); ok {
		return m
	}
	if m, ok := positionalMatch(doc, ta); ok {
		return m
	}
	return detached()
}

// exactMatch scores every literal occurrence of the quote. Any occurrence
// wins the layer; context only picks among them.
func exactMatch(spans []*docmodel.Node, ta anchor.TextAnchor) (Match, bool) {
	exactLen := utf8.RuneCountInString(ta.Exact)
	prefix := []rune(ta.Prefix)
	suffix := []rune(ta.Suffix)
	sel, hasPath := docmodel.ParsePath(ta.ParentPath)

	var best Match
	bestScore := -1
	for _, span := range spans {
		content := []rune(span.Text)
		pathBonus := 0
		if hasPath {
			if _, ok := sel.Closest(span); ok {
				pathBonus = parentPathScore
			}
		}
		for _, idx := range occurrences(span.Text, ta.Exact) {
			score := pathBonus
			score += prefixContext(content, idx, prefix)
			score += suffixContext(content, idx+exactLen, suffix)
			if score > bestScore {
				bestScore = score
				best = Match{Span: span, Offset: idx, Length: exactLen, Confidence: Exact, Score: float64(score)}
			}
		}
	}
	return best, bestScore >= 0
}

// occurrences returns the rune offsets of every, possibly overlapping,
// occurrence of sub in s.
func occurrences(s, sub string) []int {
	var out []int
	runeOff := 0
	for byteOff := 0; byteOff <= len(s); {
		i := strings.Index(s[byteOff:], sub)
		if i < 0 {
			break
		}
		runeOff += utf8.RuneCountInString(s[byteOff : byteOff+i])
		out = append(out, runeOff)
		_, size := utf8.DecodeRuneInString(s[byteOff+i:])
		byteOff += i + max(size, 1)
		runeOff++
	}
	return out
}

func prefixContext(content []rune, idx int, prefix []rune) int {
	if len(prefix) == 0 {
		return 0
	}
	before := string(content[max(0, idx-len(prefix)):idx])
	if strings.HasSuffix(before, string(prefix[max(0, len(prefix)-prefixExactWindow):])) {
		return prefixScore
	}
	near := string(content[max(0, idx-prefixExactWindow):idx])
	if strings.Contains(near, string(prefix[max(0, len(prefix)-prefixTailLen):])) {
		return prefixNearScore
	}
	return 0
}

func suffixContext(content []rune, end int, suffix []rune) int {
	if len(suffix) == 0 {
		return 0
	}
	after := string(content[end:min(len(content), end+len(suffix))])
	if strings.HasPrefix(after, string(suffix[:min(len(suffix), suffixExactWindow)])) {
		return suffixScore
	}
	near := string(content[end:min(len(content), end+suffixContainsSpan)])
	if strings.Contains(near, string(suffix[:min(len(suffix), suffixHeadLen)])) {
		return suffixNearScore
	}
	return 0
}

// fuzzyMatch slides a window of 1.3x the quote length over each span and
// keeps the first window scoring strictly highest above the threshold.
func fuzzyMatch(spans []*docmodel.Node, exact string, b *budget) (Match, bool) {
	windowSize := utf8.RuneCountInString(exact)
	extent := windowSize + int(math.Floor(float64(windowSize)*fuzzyWindowGrowth))
	step := max(1, windowSize/4)
	minLen := float64(windowSize) * fuzzyMinCoverage

	var best Match
	bestScore := fuzzyThreshold
	found := false
	for _, span := range spans {
		if !b.spend() {
			break
		}
		content := []rune(span.Text)
		if float64(len(content)) < minLen {
			continue
		}
		for i := 0; float64(i) <= float64(len(content))-minLen; i += step {
			window := string(content[i:min(len(content), i+extent)])
			score := similarity.BoundedEditSimilarity(exact, window)
			if score > bestScore {
				bestScore = score
				found = true
				best = Match{
					Span:       span,
					Offset:     i,
					Length:     min(windowSize, len(content)-i),
					Confidence: Fuzzy,
					Score:      score,
				}
			}
		}
	}
	return best, found
}

func isStructuralCandidate(n *docmodel.Node) bool {
	switch n.Tag {
	case "p", "h1", "h2", "h3", "h4", "li", "td", "blockquote":
		return true
	case "div":
		return strings.TrimSpace(n.Class) != ""
	}
	return false
}

// structuralMatch finds the block whose surrounding text and nearest heading
// best agree with the fingerprint.
func structuralMatch(doc docmodel.Document, ta anchor.TextAnchor, b *budget) (Match, bool) {
	fp := ta.Fingerprint
	if fp.NearestHeading == "" && fp.SurroundingText == "" {
		return Match{}, false
	}
	if b.exhausted() {
		return Match{}, false
	}

	var headings []*docmodel.Node
	if fp.NearestHeading != "" {
		headings = docmodel.Headings(doc, structuralHeadingLevel)
	}

	var (
		block     *docmodel.Node
		blockSpan *docmodel.Node
		bestScore = structuralThreshold
	)
	for el := range doc.Elements(isStructuralCandidate) {
		if !b.spend() {
			break
		}
		span, ok := firstEligibleSpan(doc, el)
		if !ok {
			continue
		}
		text := el.Content()
		score := 0.0
		if fp.SurroundingText != "" {
			score += structuralTextWeight * similarity.SetSimilarity(fp.SurroundingText, clip(text, structuralTextLimit))
		}
		if h, ok := nearestByTop(headings, el.Top); ok {
			score += structuralHeadingWeight * similarity.SetSimilarity(fp.NearestHeading, h.Content())
		}
		if fp.TagName != "" && el.Tag == fp.TagName {
			score += structuralTagBonus
		}
		if score > bestScore {
			bestScore = score
			block, blockSpan = el, span
		}
	}
	if block == nil {
		return Match{}, false
	}

	text := block.Content()
	key := clip(similarity.Normalize(ta.Exact), structuralKeyLen)
	offset := max(anchor.RuneIndex(similarity.Normalize(text), key), 0)
	spanLen := blockSpan.Len()
	if offset >= spanLen {
		offset = 0
	}
	length := min(utf8.RuneCountInString(ta.Exact), utf8.RuneCountInString(text), spanLen-offset)
	return Match{Span: blockSpan, Offset: offset, Length: length, Confidence: Structural, Score: bestScore}, true
}

func isPositionalCandidate(n *docmodel.Node) bool {
	switch n.Tag {
	case "p", "h2", "h3", "li", "blockquote":
		return true
	}
	return false
}

// positionalMatch anchors to the block nearest the captured scroll position.
func positionalMatch(doc docmodel.Document, ta anchor.TextAnchor) (Match, bool) {
	pct := ta.Fingerprint.ScrollPercentage
	if pct == nil {
		return Match{}, false
	}
	m := doc.Metrics()
	target := *pct * m.ScrollHeight

	var closest *docmodel.Node
	closestDist := math.Inf(1)
	for el := range doc.Elements(isPositionalCandidate) {
		if dist := math.Abs(el.Top - target); dist < closestDist {
			closest, closestDist = el, dist
		}
	}
	limit := m.ViewportHeight * positionalViewportFactor
	if closest == nil || closestDist >= limit {
		return Match{}, false
	}
	span, ok := firstEligibleSpan(doc, closest)
	if !ok {
		return Match{}, false
	}
	return Match{
		Span:       span,
		Offset:     0,
		Length:     min(utf8.RuneCountInString(ta.Exact), span.Len()),
		Confidence: Positional,
		Score:      1 - closestDist/limit,
	}, true
}

func firstEligibleSpan(doc docmodel.Document, el *docmodel.Node) (*docmodel.Node, bool) {
	for d := range el.Descendants() {
		if d.IsText() && strings.TrimSpace(d.Text) != "" && !doc.Excluded(d) {
			return d, true
		}
	}
	return nil, false
}

func nearestByTop(nodes []*docmodel.Node, top float64) (*docmodel.Node, bool) {
	var best *docmodel.Node
	bestDist := math.Inf(1)
	for _, n := range nodes {
		if dist := math.Abs(n.Top - top); dist < bestDist {
			best, bestDist = n, dist
		}
	}
	return best, best != nil
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
