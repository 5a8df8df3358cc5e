package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"lens/api/internal/anchor"
	"lens/api/internal/config"
	"lens/api/internal/docmodel"
	"lens/api/internal/export"
	"lens/api/internal/resolver"
	"lens/api/internal/search"
	"lens/api/internal/session"
	"lens/api/internal/snapshot"
	"lens/api/internal/store"
	"lens/api/internal/util"
)

type annotationStore interface {
	List(context.Context) ([]store.Annotation, error)
	ListByURL(context.Context, string) ([]store.Annotation, error)
	Get(context.Context, string) (store.Annotation, error)
	Insert(context.Context, store.Annotation) error
	Update(context.Context, string, store.AnnotationPatch) (store.Annotation, error)
	ReplaceAnchor(context.Context, string, anchor.Anchor) (store.Annotation, error)
	Delete(context.Context, string) error
	DeleteByURL(context.Context, string) (int, error)
	AddReply(context.Context, string, store.Reply) (store.Annotation, error)
	DeleteReply(context.Context, string, string) (store.Annotation, error)
	Ping(context.Context) error
}

type snapshotService interface {
	Commit(snapshot.Page, string, string) (snapshot.Version, error)
	Content(string, string) (snapshot.Page, snapshot.Version, error)
	History(string, int) ([]snapshot.Version, error)
}

type searchService interface {
	Search(search.Query) search.Response
	Index(search.Record)
	Delete(string)
}

type exportService interface {
	Export(context.Context, export.Request) (*export.Result, error)
	Publish(context.Context, export.Request) (*export.Result, error)
}

// renderFunc loads a live page; see livedoc.Snapshot.
type renderFunc func(ctx context.Context, url string) (*docmodel.Tree, error)

type Service struct {
	cfg         config.Config
	store       annotationStore
	sessions    session.Store
	snapshots   snapshotService
	search      searchService
	exports     exportService
	resolver    *resolver.Resolver
	materialize func(resolver.Match) (resolver.Highlight, error)
	render      renderFunc
	now         func() time.Time
}

func New(cfg config.Config, annotations *store.AnnotationStore, sessions session.Store, snapshots *snapshot.Service, searcher *search.Service, exports *export.Service) *Service {
	return &Service{
		cfg:         cfg,
		store:       annotations,
		sessions:    sessions,
		snapshots:   snapshots,
		search:      searcher,
		exports:     exports,
		resolver:    resolver.New(resolver.Options{MaxNodes: cfg.ResolveMaxNodes, Timeout: cfg.ResolveTimeout}),
		materialize: resolver.Materialize,
		now:         time.Now,
	}
}

// WithRenderer enables live page rendering.
func (s *Service) WithRenderer(render func(ctx context.Context, url string) (*docmodel.Tree, error)) *Service {
	s.render = render
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SelectionInput addresses a selection by span index (document order) and
// rune offset.
type SelectionInput struct {
	StartSpan   int `json:"startSpan"`
	StartOffset int `json:"startOffset"`
	EndSpan     int `json:"endSpan"`
	EndOffset   int `json:"endOffset"`
}

// CaptureInput selects text on a page either by quote (first occurrence
// inside one span) or by explicit span offsets. With neither, X and Y make a
// pin.
type CaptureInput struct {
	Page      PageInput       `json:"page"`
	Quote     string          `json:"quote,omitempty"`
	Selection *SelectionInput `json:"selection,omitempty"`
	X         *float64        `json:"x,omitempty"`
	Y         *float64        `json:"y,omitempty"`
}

// CaptureAnchor builds the anchor for a selection on the current page.
func (s *Service) CaptureAnchor(ctx context.Context, input CaptureInput) (anchor.Anchor, error) {
	if input.Quote == "" && input.Selection == nil {
		if input.X != nil && input.Y != nil {
			return anchor.NewCoordinate(*input.X, *input.Y), nil
		}
		return anchor.Anchor{}, anchor.ErrEmptySelection
	}
	if strings.TrimSpace(input.Quote) == "" && input.Selection == nil {
		return anchor.Anchor{}, anchor.ErrEmptySelection
	}

	doc, err := s.loadDocument(ctx, input.Page)
	if err != nil {
		return anchor.Anchor{}, err
	}

	var sel anchor.Selection
	if input.Selection != nil {
		start, okStart := docmodel.SpanAt(doc, input.Selection.StartSpan)
		end, okEnd := docmodel.SpanAt(doc, input.Selection.EndSpan)
		if !okStart || !okEnd {
			return anchor.Anchor{}, anchor.ErrInvalidSelection
		}
		sel = anchor.Selection{Start: start, StartOffset: input.Selection.StartOffset, End: end, EndOffset: input.Selection.EndOffset}
	} else {
		found, ok := anchor.FindSelection(doc, input.Quote)
		if !ok {
			return anchor.Anchor{}, domainError(http.StatusUnprocessableEntity, "QUOTE_NOT_FOUND", "quote not found in page", nil)
		}
		sel = found
	}

	selected, err := anchor.SelectedText(doc, sel)
	if err != nil {
		return anchor.Anchor{}, err
	}
	ta, err := anchor.Capture(doc, sel, selected)
	if err != nil {
		return anchor.Anchor{}, err
	}
	return anchor.NewText(selected, ta), nil
}

type CreateAnnotationInput struct {
	URL       string         `json:"url"`
	Text      string         `json:"text"`
	Tags      []string       `json:"tags"`
	Anchor    *anchor.Anchor `json:"anchor,omitempty"`
	Capture   *CaptureInput  `json:"capture,omitempty"`
	Published bool           `json:"published"`
}

// CreateAnnotation stores a new annotation. The anchor is either given or
// captured from Capture; a failed capture stores nothing.
func (s *Service) CreateAnnotation(ctx context.Context, input CreateAnnotationInput) (store.Annotation, error) {
	url := strings.TrimSpace(input.URL)
	if url == "" {
		return store.Annotation{}, validationError("url is required")
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return store.Annotation{}, validationError("text is required")
	}

	var a anchor.Anchor
	switch {
	case input.Anchor != nil:
		a = *input.Anchor
	case input.Capture != nil:
		capture := *input.Capture
		if capture.Page.URL == "" {
			capture.Page.URL = url
		}
		captured, err := s.CaptureAnchor(ctx, capture)
		if err != nil {
			return store.Annotation{}, err
		}
		a = captured
	default:
		return store.Annotation{}, validationError("anchor or capture is required")
	}
	if err := a.Validate(); err != nil {
		return store.Annotation{}, err
	}

	annotation := store.Annotation{
		ID:        util.NewID("ann"),
		URL:       url,
		Created:   s.now().UTC(),
		Text:      text,
		Tags:      normalizeTags(input.Tags),
		Anchor:    a,
		Replies:   []store.Reply{},
		Published: input.Published,
	}
	if err := s.store.Insert(ctx, annotation); err != nil {
		return store.Annotation{}, err
	}
	s.search.Index(search.RecordFor(annotation))
	return annotation, nil
}

type UpdateAnnotationInput struct {
	Text      *string   `json:"text,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Published *bool     `json:"published,omitempty"`
}

func (s *Service) UpdateAnnotation(ctx context.Context, id string, input UpdateAnnotationInput) (store.Annotation, error) {
	patch := store.AnnotationPatch{Published: input.Published}
	if input.Text != nil {
		text := strings.TrimSpace(*input.Text)
		if text == "" {
			return store.Annotation{}, validationError("text is required")
		}
		patch.Text = &text
	}
	if input.Tags != nil {
		tags := normalizeTags(*input.Tags)
		patch.Tags = &tags
	}
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return store.Annotation{}, err
	}
	s.search.Index(search.RecordFor(updated))
	return updated, nil
}

func (s *Service) DeleteAnnotation(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.search.Delete(id)
	return nil
}

func (s *Service) GetAnnotation(ctx context.Context, id string) (store.Annotation, error) {
	return s.store.Get(ctx, id)
}

type ReplyInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Service) AddReply(ctx context.Context, annotationID string, input ReplyInput) (store.Annotation, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return store.Annotation{}, validationError("text is required")
	}
	replyType := store.ReplyType(strings.ToLower(strings.TrimSpace(input.Type)))
	if replyType == "" {
		replyType = store.ReplyComment
	}
	if !replyType.Valid() {
		return store.Annotation{}, validationError("type must be comment, agree or disagree")
	}
	return s.store.AddReply(ctx, annotationID, store.Reply{
		ID:      util.NewID("rep"),
		Type:    replyType,
		Text:    text,
		Created: s.now().UTC(),
	})
}

func (s *Service) DeleteReply(ctx context.Context, annotationID, replyID string) (store.Annotation, error) {
	return s.store.DeleteReply(ctx, annotationID, replyID)
}

// ListPage returns a page's annotations in creation order.
func (s *Service) ListPage(ctx context.Context, url string) ([]store.Annotation, error) {
	if strings.TrimSpace(url) == "" {
		return nil, validationError("url is required")
	}
	return s.store.ListByURL(ctx, url)
}

type PageStats struct {
	URL        string `json:"url"`
	PageCount  int    `json:"pageCount"`
	TextCount  int    `json:"textCount"`
	PinCount   int    `json:"pinCount"`
	TotalCount int    `json:"totalCount"`
	PageTotal  int    `json:"pageTotal"`
}

// PageStats counts a page's annotations against the whole collection.
func (s *Service) PageStats(ctx context.Context, url string) (PageStats, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return PageStats{}, err
	}
	stats := PageStats{URL: url, TotalCount: len(all)}
	pages := make(map[string]struct{})
	for _, a := range all {
		pages[a.URL] = struct{}{}
		if a.URL != url {
			continue
		}
		stats.PageCount++
		if a.Anchor.Type == anchor.KindCoordinate {
			stats.PinCount++
		} else {
			stats.TextCount++
		}
	}
	stats.PageTotal = len(pages)
	return stats, nil
}

// ClearPage deletes every annotation of a page.
func (s *Service) ClearPage(ctx context.Context, url string) (int, error) {
	if strings.TrimSpace(url) == "" {
		return 0, validationError("url is required")
	}
	page, err := s.store.ListByURL(ctx, url)
	if err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteByURL(ctx, url)
	if err != nil {
		return 0, err
	}
	for _, a := range page {
		s.search.Delete(a.ID)
	}
	return removed, nil
}

func (s *Service) Search(_ context.Context, q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exports.Export(ctx, req)
}

// PublishExport uploads an export to object storage.
func (s *Service) PublishExport(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exports.Publish(ctx, req)
}

// SnapshotPage stores a version of a page for later resolution.
func (s *Service) SnapshotPage(_ context.Context, page snapshot.Page, author, message string) (snapshot.Version, error) {
	if strings.TrimSpace(page.URL) == "" {
		return snapshot.Version{}, validationError("url is required")
	}
	if page.Body == "" {
		return snapshot.Version{}, validationError("body is required")
	}
	page.Format = formatOrHTML(page.Format)
	if !page.Format.Valid() {
		return snapshot.Version{}, validationError("format must be html, markdown or prosemirror")
	}
	if strings.TrimSpace(author) == "" {
		author = "lens"
	}
	return s.snapshots.Commit(page, author, message)
}

// PageSnapshot returns a stored page version, head when version is empty.
func (s *Service) PageSnapshot(_ context.Context, url, version string) (snapshot.Page, snapshot.Version, error) {
	if strings.TrimSpace(url) == "" {
		return snapshot.Page{}, snapshot.Version{}, validationError("url is required")
	}
	return s.snapshots.Content(url, version)
}

func (s *Service) PageHistory(_ context.Context, url string, limit int) ([]snapshot.Version, error) {
	versions, err := s.snapshots.History(url, limit)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return []snapshot.Version{}, nil
	}
	return versions, err
}

// normalizeTags trims tags and drops empty ones.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
