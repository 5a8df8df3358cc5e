package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lens/api/internal/store"
)

// Lister is the slice of the annotation store an export reads.
type Lister interface {
	List(ctx context.Context) ([]store.Annotation, error)
}

// Service provides annotation export functionality
type Service struct {
	annotations Lister
	uploader    *Uploader
	now         func() time.Time
	pdf         func(ctx context.Context, html string) ([]byte, error)
}

// NewService creates a new export service. uploader may be nil.
func NewService(annotations Lister, uploader *Uploader) *Service {
	return &Service{
		annotations: annotations,
		uploader:    uploader,
		now:         time.Now,
		pdf:         renderPDF,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	all, err := s.annotations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	if all == nil {
		all = []store.Annotation{}
	}
	if req.URL != "" {
		page := make([]store.Annotation, 0)
		for _, a := range all {
			if a.URL == req.URL {
				page = append(page, a)
			}
		}
		all = page
	}

	now := s.now()
	res := &Result{
		Filename: filename(req, now),
		MimeType: req.Format.mimeType(),
	}

	if req.Format == FormatJSON {
		data, err := json.MarshalIndent(all, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode annotations: %w", err)
		}
		res.Data = data
		return res, nil
	}

	html, err := RenderOverviewHTML(NewTemplateData(all, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if req.Format == FormatHTML {
		res.Data = []byte(html)
		return res, nil
	}

	res.Data, err = s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Publish exports and uploads the result to object storage.
func (s *Service) Publish(ctx context.Context, req Request) (*Result, error) {
	if s.uploader == nil {
		return nil, ErrUploadUnavailable
	}
	res, err := s.Export(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Location, err = s.uploader.Upload(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// filename follows the lens-annotations-YYYY-MM-DD.<ext> convention; page
// exports carry the page in the name.
func filename(req Request, now time.Time) string {
	name := "lens-annotations-"
	if req.URL != "" {
		name += sanitizeFilename(req.URL) + "-"
	}
	return name + dateStamp(now) + "." + string(req.Format)
}
