package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lens/api/internal/docmodel"
	"lens/api/internal/snapshot"
)

// PageInput says where the current state of a page comes from. Exactly one
// source is used, in this order: an inline body, a live render, then a stored
// snapshot (Version, or the newest when empty).
type PageInput struct {
	URL     string          `json:"url"`
	Format  snapshot.Format `json:"format,omitempty"`
	Body    string          `json:"body,omitempty"`
	Version string          `json:"version,omitempty"`
	Live    bool            `json:"live,omitempty"`
	ScrollY float64         `json:"scrollY,omitempty"`
	// Save commits an inline body as a new snapshot of the page.
	Save bool `json:"save,omitempty"`
}

func (s *Service) layout(scrollY float64) docmodel.Layout {
	return docmodel.Layout{
		LineHeight:     s.cfg.LineHeight,
		CharsPerLine:   s.cfg.CharsPerLine,
		BlockMargin:    docmodel.DefaultLayout.BlockMargin,
		ViewportHeight: s.cfg.ViewportHeight,
		ScrollY:        scrollY,
	}
}

func (s *Service) parsePage(format snapshot.Format, body string, scrollY float64) (*docmodel.Tree, error) {
	l := s.layout(scrollY)
	var (
		tree *docmodel.Tree
		err  error
	)
	switch format {
	case "", snapshot.FormatHTML:
		tree, err = docmodel.ParseHTMLString(body, l)
	case snapshot.FormatMarkdown:
		tree, err = docmodel.ParseMarkdown([]byte(body), l)
	case snapshot.FormatProseMirror:
		tree, err = docmodel.ParseProseMirror([]byte(body), l)
	default:
		return nil, validationError("format must be html, markdown or prosemirror")
	}
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_PAGE", err.Error(), nil)
	}
	return tree, nil
}

// loadDocument builds the document model for a page.
func (s *Service) loadDocument(ctx context.Context, p PageInput) (*docmodel.Tree, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, validationError("page url is required")
	}

	switch {
	case p.Body != "":
		tree, err := s.parsePage(p.Format, p.Body, p.ScrollY)
		if err != nil {
			return nil, err
		}
		if p.Save {
			if _, err := s.SnapshotPage(ctx, snapshot.Page{URL: p.URL, Format: formatOrHTML(p.Format), Body: p.Body}, "lens", ""); err != nil {
				return nil, err
			}
		}
		return tree, nil
	case p.Live:
		if s.render == nil {
			return nil, domainError(http.StatusUnprocessableEntity, "LIVE_RENDER_DISABLED", "live rendering is not enabled", nil)
		}
		tree, err := s.render(ctx, p.URL)
		if err != nil {
			return nil, err
		}
		if p.ScrollY > 0 {
			tree.SetScrollY(p.ScrollY)
		}
		return tree, nil
	}

	page, _, err := s.snapshots.Content(p.URL, p.Version)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, domainError(http.StatusUnprocessableEntity, "PAGE_REQUIRED", "no page body, live render or stored snapshot for "+p.URL, nil)
	}
	if err != nil {
		return nil, err
	}
	return s.parsePage(page.Format, page.Body, p.ScrollY)
}

func formatOrHTML(f snapshot.Format) snapshot.Format {
	if f == "" {
		return snapshot.FormatHTML
	}
	return f
}
