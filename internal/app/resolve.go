package app

import (
	"context"
	"errors"
	"log"

	"lens/api/internal/anchor"
	"lens/api/internal/docmodel"
	"lens/api/internal/resolver"
	"lens/api/internal/store"
)

type ResolveStatus string

const (
	StatusAnchored ResolveStatus = "anchored"
	StatusPinned   ResolveStatus = "pinned"
	StatusDetached ResolveStatus = "detached"
)

// Placement is where one annotation landed on the current page. Span and
// Path locate the highlighted text span; they are only meaningful for the
// page state the pass ran on.
type Placement struct {
	Annotation store.Annotation         `json:"annotation"`
	Status     ResolveStatus            `json:"status"`
	Confidence resolver.Confidence      `json:"confidence"`
	Score      float64                  `json:"score,omitempty"`
	Span       *int                     `json:"span,omitempty"`
	Path       string                   `json:"path,omitempty"`
	Highlight  *resolver.Highlight      `json:"highlight,omitempty"`
	Pin        *anchor.CoordinateAnchor `json:"pin,omitempty"`
}

type PageResolution struct {
	URL        string      `json:"url"`
	Placements []Placement `json:"placements"`
	Anchored   int         `json:"anchored"`
	Pinned     int         `json:"pinned"`
	Detached   int         `json:"detached"`
}

// ResolvePage places every annotation of a page, one after another, against
// a single document state. Detached annotations stay in the result. An
// annotation whose highlight cannot be materialized is logged and skipped.
func (s *Service) ResolvePage(ctx context.Context, page PageInput) (PageResolution, error) {
	annotations, err := s.ListPage(ctx, page.URL)
	if err != nil {
		return PageResolution{}, err
	}
	result := PageResolution{URL: page.URL, Placements: []Placement{}}
	if len(annotations) == 0 {
		return result, nil
	}

	doc, err := s.loadDocument(ctx, page)
	if err != nil {
		return PageResolution{}, err
	}

	for _, a := range annotations {
		placement, err := s.place(ctx, doc, a)
		if err != nil {
			log.Printf("resolve: skip %s on %s: %v", a.ID, a.URL, err)
			continue
		}
		switch placement.Status {
		case StatusAnchored:
			result.Anchored++
		case StatusPinned:
			result.Pinned++
		default:
			result.Detached++
		}
		result.Placements = append(result.Placements, placement)
	}
	return result, nil
}

// ResolveOne places a single annotation. Unlike ResolvePage a highlight that
// cannot be materialized is returned as an error.
func (s *Service) ResolveOne(ctx context.Context, id string, page PageInput) (Placement, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Placement{}, err
	}
	if page.URL == "" {
		page.URL = a.URL
	}
	if a.Anchor.Type == anchor.KindCoordinate {
		return s.place(ctx, nil, a)
	}
	doc, err := s.loadDocument(ctx, page)
	if err != nil {
		return Placement{}, err
	}
	return s.place(ctx, doc, a)
}

func (s *Service) place(ctx context.Context, doc docmodel.Document, a store.Annotation) (Placement, error) {
	if pin, ok := a.Anchor.Coordinate(); ok {
		return Placement{Annotation: a, Status: StatusPinned, Pin: &pin}, nil
	}
	ta, ok := a.Anchor.Text()
	if !ok || doc == nil {
		return Placement{Annotation: a, Status: StatusDetached, Confidence: resolver.Detached}, nil
	}

	match := s.resolver.Resolve(ctx, doc, ta)
	if match.Detached() {
		return Placement{Annotation: a, Status: StatusDetached, Confidence: resolver.Detached}, nil
	}
	highlight, err := s.materialize(match)
	if errors.Is(err, resolver.ErrDetached) {
		return Placement{Annotation: a, Status: StatusDetached, Confidence: resolver.Detached}, nil
	}
	if err != nil {
		return Placement{}, err
	}

	placement := Placement{
		Annotation: a,
		Status:     StatusAnchored,
		Confidence: match.Confidence,
		Score:      match.Score,
		Highlight:  &highlight,
	}
	if idx, ok := docmodel.SpanIndex(doc, match.Span); ok {
		placement.Span = &idx
	}
	if el := match.Span.Element(); el != nil {
		placement.Path = docmodel.Path(el)
	}
	return placement, nil
}
