package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
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
)

const (
	pageURL     = "https://example.com/post"
	articleHTML = `<html><body><article><h2>Intro</h2><p class="lead">The quick brown fox jumps over the lazy dog.</p><p>Second paragraph about foxes.</p></article></body></html>`
)

type pingKV struct {
	*store.MemoryKV
	pingErr error
}

func (p *pingKV) Ping(context.Context) error { return p.pingErr }

func testConfig() config.Config {
	return config.Config{
		ResolveMaxNodes: 50_000,
		ResolveTimeout:  500 * time.Millisecond,
		LineHeight:      20,
		CharsPerLine:    90,
		ViewportHeight:  900,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceWithKV(t, &pingKV{MemoryKV: store.NewMemoryKV()})
}

func newTestServiceWithKV(t *testing.T, kv store.KV) *Service {
	t.Helper()
	annotations := store.NewAnnotationStore(kv)
	svc := New(
		testConfig(),
		annotations,
		session.NewMemoryStore(),
		snapshot.New(t.TempDir()),
		search.NewService(nil, search.NewScan(annotations)),
		export.NewService(annotations, nil),
	)
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return svc
}

func quoteCapture(quote string) *CaptureInput {
	return &CaptureInput{Page: PageInput{URL: pageURL, Body: articleHTML}, Quote: quote}
}

func createOnPage(t *testing.T, svc *Service, quote, text string) store.Annotation {
	t.Helper()
	created, err := svc.CreateAnnotation(context.Background(), CreateAnnotationInput{
		URL:     pageURL,
		Text:    text,
		Capture: quoteCapture(quote),
	})
	if err != nil {
		t.Fatalf("CreateAnnotation(%q) error = %v", quote, err)
	}
	return created
}

func domainCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func TestCreateAnnotationCapturesQuote(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{
		URL:     pageURL,
		Text:    "  worth remembering ",
		Tags:    []string{"animals", "  ", " idioms "},
		Capture: quoteCapture("brown fox"),
	})
	if err != nil {
		t.Fatalf("CreateAnnotation() error = %v", err)
	}
	if !strings.HasPrefix(created.ID, "ann_") {
		t.Errorf("unexpected id %q", created.ID)
	}
	if created.Text != "worth remembering" {
		t.Errorf("text = %q", created.Text)
	}
	if strings.Join(created.Tags, ",") != "animals,idioms" {
		t.Errorf("tags = %v", created.Tags)
	}
	if created.Updated != nil || created.Published {
		t.Errorf("new annotation should be unpublished and never updated: %+v", created)
	}

	ta, ok := created.Anchor.Text()
	if !ok {
		t.Fatalf("expected text anchor, got %+v", created.Anchor)
	}
	if created.Anchor.SelectedText != "brown fox" || ta.Exact != "brown fox" {
		t.Errorf("unexpected anchor quote: %+v", ta)
	}
	if ta.Prefix != "The quick " || !strings.HasPrefix(ta.Suffix, " jumps over") {
		t.Errorf("unexpected context: prefix=%q suffix=%q", ta.Prefix, ta.Suffix)
	}
	if ta.Fingerprint.NearestHeading != "Intro" || ta.Fingerprint.TagName != "p" {
		t.Errorf("unexpected fingerprint: %+v", ta.Fingerprint)
	}

	listed, err := svc.ListPage(ctx, pageURL)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected page list: %+v", listed)
	}
}

func TestCreateAnnotationRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateAnnotationInput
		code    string
		wantErr error
	}{
		{name: "missing text", input: CreateAnnotationInput{URL: pageURL, Text: "  ", Capture: quoteCapture("brown fox")}, code: "VALIDATION_ERROR"},
		{name: "missing url", input: CreateAnnotationInput{Text: "note", Capture: quoteCapture("brown fox")}, code: "VALIDATION_ERROR"},
		{name: "missing anchor", input: CreateAnnotationInput{URL: pageURL, Text: "note"}, code: "VALIDATION_ERROR"},
		{name: "blank selection", input: CreateAnnotationInput{URL: pageURL, Text: "note", Capture: quoteCapture("   ")}, wantErr: anchor.ErrEmptySelection},
		{name: "quote not on page", input: CreateAnnotationInput{URL: pageURL, Text: "note", Capture: quoteCapture("purple elephant")}, code: "QUOTE_NOT_FOUND"},
		{name: "unknown page format", input: CreateAnnotationInput{URL: pageURL, Text: "note", Capture: &CaptureInput{Page: PageInput{URL: pageURL, Body: "x", Format: "docx"}, Quote: "x"}}, code: "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			_, err := svc.CreateAnnotation(context.Background(), tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.code != "" && domainCode(err) != tt.code {
				t.Fatalf("error = %v, want code %s", err, tt.code)
			}
			all, _ := svc.ListPage(context.Background(), pageURL)
			if len(all) != 0 {
				t.Fatalf("failed create must not persist, got %d annotations", len(all))
			}
		})
	}
}

func TestCreatePinAnnotation(t *testing.T) {
	svc := newTestService(t)
	x, y := 120.0, 480.0
	created, err := svc.CreateAnnotation(context.Background(), CreateAnnotationInput{
		URL:     pageURL,
		Text:    "look here",
		Capture: &CaptureInput{Page: PageInput{URL: pageURL}, X: &x, Y: &y},
	})
	if err != nil {
		t.Fatalf("CreateAnnotation() error = %v", err)
	}
	pin, ok := created.Anchor.Coordinate()
	if !ok || pin.X != 120 || pin.Y != 480 {
		t.Fatalf("unexpected pin anchor: %+v", created.Anchor)
	}
}

func TestCaptureAnchorBySpanSelection(t *testing.T) {
	svc := newTestService(t)
	captured, err := svc.CaptureAnchor(context.Background(), CaptureInput{
		Page:      PageInput{URL: pageURL, Body: articleHTML},
		Selection: &SelectionInput{StartSpan: 1, StartOffset: 35, EndSpan: 2, EndOffset: 6},
	})
	if err != nil {
		t.Fatalf("CaptureAnchor() error = %v", err)
	}
	if captured.SelectedText != "lazy dog.Second" {
		t.Fatalf("selected = %q", captured.SelectedText)
	}

	created, err := svc.CreateAnnotation(context.Background(), CreateAnnotationInput{URL: pageURL, Text: "across", Anchor: &captured})
	if err != nil {
		t.Fatalf("CreateAnnotation() error = %v", err)
	}
	placement, err := svc.ResolveOne(context.Background(), created.ID, PageInput{Body: articleHTML})
	if err != nil {
		t.Fatalf("ResolveOne() error = %v", err)
	}
	if placement.Confidence == resolver.Exact {
		t.Fatalf("multi-span quote resolved exactly: %+v", placement)
	}

	_, err = svc.CaptureAnchor(context.Background(), CaptureInput{
		Page:      PageInput{URL: pageURL, Body: articleHTML},
		Selection: &SelectionInput{StartSpan: 9, EndSpan: 9},
	})
	if !errors.Is(err, anchor.ErrInvalidSelection) {
		t.Fatalf("out of range selection error = %v", err)
	}
}

func TestUpdateAndDeleteAnnotation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createOnPage(t, svc, "brown fox", "first")

	text := "second"
	tags := []string{" b ", ""}
	published := true
	updated, err := svc.UpdateAnnotation(ctx, created.ID, UpdateAnnotationInput{Text: &text, Tags: &tags, Published: &published})
	if err != nil {
		t.Fatalf("UpdateAnnotation() error = %v", err)
	}
	if updated.Text != "second" || len(updated.Tags) != 1 || updated.Tags[0] != "b" || !updated.Published || updated.Updated == nil {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.Anchor.SelectedText != "brown fox" {
		t.Fatalf("update must not touch the anchor: %+v", updated.Anchor)
	}

	blank := " "
	if _, err := svc.UpdateAnnotation(ctx, created.ID, UpdateAnnotationInput{Text: &blank}); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("blank text error = %v", err)
	}

	if err := svc.DeleteAnnotation(ctx, created.ID); err != nil {
		t.Fatalf("DeleteAnnotation() error = %v", err)
	}
	if err := svc.DeleteAnnotation(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete error = %v", err)
	}
}

func TestReplies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createOnPage(t, svc, "brown fox", "note")

	if _, err := svc.AddReply(ctx, created.ID, ReplyInput{Text: "  "}); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("empty reply error = %v", err)
	}
	if _, err := svc.AddReply(ctx, created.ID, ReplyInput{Type: "shrug", Text: "hm"}); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("bad type error = %v", err)
	}

	withReply, err := svc.AddReply(ctx, created.ID, ReplyInput{Text: "agreed?"})
	if err != nil {
		t.Fatalf("AddReply() error = %v", err)
	}
	withReply, err = svc.AddReply(ctx, created.ID, ReplyInput{Type: "Disagree", Text: "no"})
	if err != nil {
		t.Fatalf("AddReply() error = %v", err)
	}
	if len(withReply.Replies) != 2 {
		t.Fatalf("expected 2 replies, got %+v", withReply.Replies)
	}
	first := withReply.Replies[0]
	if first.Type != store.ReplyComment || !strings.HasPrefix(first.ID, "rep_") || first.AnnotationID != created.ID {
		t.Errorf("unexpected first reply: %+v", first)
	}
	if withReply.Replies[1].Type != store.ReplyDisagree {
		t.Errorf("unexpected second reply type: %s", withReply.Replies[1].Type)
	}

	afterDelete, err := svc.DeleteReply(ctx, created.ID, first.ID)
	if err != nil {
		t.Fatalf("DeleteReply() error = %v", err)
	}
	if len(afterDelete.Replies) != 1 || afterDelete.Replies[0].Text != "no" {
		t.Fatalf("unexpected replies after delete: %+v", afterDelete.Replies)
	}
	if _, err := svc.AddReply(ctx, "ann_missing", ReplyInput{Text: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("reply to missing annotation error = %v", err)
	}
}

func TestResolvePageKeepsPinsAndDetached(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	anchored := createOnPage(t, svc, "brown fox", "fox")
	pinned, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{
		URL:    pageURL,
		Text:   "pin",
		Anchor: ptr(anchor.NewCoordinate(10, 20)),
	})
	if err != nil {
		t.Fatalf("create pin: %v", err)
	}
	lost, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{
		URL:    pageURL,
		Text:   "gone",
		Anchor: ptr(anchor.NewText("zebra crossing", anchor.TextAnchor{Exact: "zebra crossing"})),
	})
	if err != nil {
		t.Fatalf("create lost: %v", err)
	}

	edited := strings.Replace(articleHTML, "Intro", "Introduction", 1)
	resolution, err := svc.ResolvePage(ctx, PageInput{URL: pageURL, Body: edited})
	if err != nil {
		t.Fatalf("ResolvePage() error = %v", err)
	}
	if resolution.Anchored != 1 || resolution.Pinned != 1 || resolution.Detached != 1 || len(resolution.Placements) != 3 {
		t.Fatalf("unexpected counts: %+v", resolution)
	}

	byID := map[string]Placement{}
	for _, p := range resolution.Placements {
		byID[p.Annotation.ID] = p
	}

	got := byID[anchored.ID]
	if got.Status != StatusAnchored || got.Confidence != resolver.Exact {
		t.Fatalf("unexpected anchored placement: %+v", got)
	}
	if got.Highlight == nil || got.Highlight.Text != "brown fox" || got.Highlight.Offset != 10 {
		t.Fatalf("unexpected highlight: %+v", got.Highlight)
	}
	if got.Span == nil || *got.Span != 1 || !strings.HasSuffix(got.Path, "p.lead") {
		t.Fatalf("unexpected location: span=%v path=%q", got.Span, got.Path)
	}

	if p := byID[pinned.ID]; p.Status != StatusPinned || p.Pin == nil || p.Pin.Y != 20 {
		t.Fatalf("unexpected pin placement: %+v", p)
	}
	if p := byID[lost.ID]; p.Status != StatusDetached || p.Confidence != resolver.Detached || p.Highlight != nil {
		t.Fatalf("unexpected detached placement: %+v", p)
	}

	if _, err := svc.GetAnnotation(ctx, lost.ID); err != nil {
		t.Fatalf("detached annotation must be kept: %v", err)
	}
}

func TestResolvePageFromSnapshot(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	empty, err := svc.ResolvePage(ctx, PageInput{URL: "https://example.com/empty"})
	if err != nil || len(empty.Placements) != 0 {
		t.Fatalf("page without annotations: %+v, %v", empty, err)
	}

	created, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{
		URL:     pageURL,
		Text:    "saved",
		Capture: &CaptureInput{Page: PageInput{URL: pageURL, Body: articleHTML, Save: true}, Quote: "lazy dog"},
	})
	if err != nil {
		t.Fatalf("CreateAnnotation() error = %v", err)
	}

	resolution, err := svc.ResolvePage(ctx, PageInput{URL: pageURL})
	if err != nil {
		t.Fatalf("ResolvePage(snapshot) error = %v", err)
	}
	if resolution.Anchored != 1 || resolution.Placements[0].Annotation.ID != created.ID {
		t.Fatalf("unexpected resolution: %+v", resolution)
	}

	history, err := svc.PageHistory(ctx, pageURL, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("PageHistory() = %+v, %v", history, err)
	}
	if _, err := svc.ResolvePage(ctx, PageInput{URL: pageURL, Version: "deadbee"}); !errors.Is(err, snapshot.ErrUnknownVersion) {
		t.Fatalf("unknown version error = %v", err)
	}

	other := "https://example.com/unsaved"
	if _, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{URL: other, Text: "x", Capture: &CaptureInput{Page: PageInput{URL: other, Body: articleHTML}, Quote: "fox"}}); err != nil {
		t.Fatalf("create on unsaved page: %v", err)
	}
	if _, err := svc.ResolvePage(ctx, PageInput{URL: other}); domainCode(err) != "PAGE_REQUIRED" {
		t.Fatalf("unsaved page error = %v", err)
	}
	if _, err := svc.ResolvePage(ctx, PageInput{URL: other, Live: true}); domainCode(err) != "LIVE_RENDER_DISABLED" {
		t.Fatalf("live render error = %v", err)
	}
}

func TestResolvePageWithRenderer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createOnPage(t, svc, "brown fox", "fox")

	rendered := 0
	svc.WithRenderer(func(context.Context, string) (*docmodel.Tree, error) {
		rendered++
		return svc.parsePage(snapshot.FormatHTML, articleHTML, 0)
	})

	resolution, err := svc.ResolvePage(ctx, PageInput{URL: pageURL, Live: true})
	if err != nil {
		t.Fatalf("ResolvePage(live) error = %v", err)
	}
	if rendered != 1 || resolution.Anchored != 1 {
		t.Fatalf("rendered=%d resolution=%+v", rendered, resolution)
	}
}

func TestResolveOne(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createOnPage(t, svc, "Second paragraph", "second")

	placement, err := svc.ResolveOne(ctx, created.ID, PageInput{Body: articleHTML})
	if err != nil {
		t.Fatalf("ResolveOne() error = %v", err)
	}
	if placement.Status != StatusAnchored || placement.Highlight.Text != "Second paragraph" {
		t.Fatalf("unexpected placement: %+v", placement)
	}

	rewritten := `<html><body><p>Nothing in common here at all.</p></body></html>`
	placement, err = svc.ResolveOne(ctx, created.ID, PageInput{Body: rewritten})
	if err != nil {
		t.Fatalf("ResolveOne(rewritten) error = %v", err)
	}
	if placement.Status == StatusAnchored && placement.Confidence.Rank() >= resolver.Fuzzy.Rank() {
		t.Fatalf("rewritten page should not match the quote: %+v", placement)
	}

	if _, err := svc.ResolveOne(ctx, "ann_missing", PageInput{Body: articleHTML}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing annotation error = %v", err)
	}
}

func TestResolveSkipsUnrenderableHighlight(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	kept := createOnPage(t, svc, "brown fox", "fox")
	stale := createOnPage(t, svc, "Second paragraph", "second")

	svc.materialize = func(m resolver.Match) (resolver.Highlight, error) {
		if strings.HasPrefix(m.Span.Text, "Second") {
			m.Length = len([]rune(m.Span.Text)) + 1
		}
		return resolver.Materialize(m)
	}

	resolution, err := svc.ResolvePage(ctx, PageInput{URL: pageURL, Body: articleHTML})
	if err != nil {
		t.Fatalf("ResolvePage() error = %v", err)
	}
	if len(resolution.Placements) != 1 || resolution.Placements[0].Annotation.ID != kept.ID {
		t.Fatalf("unexpected placements: %+v", resolution.Placements)
	}
	if resolution.Anchored != 1 || resolution.Detached != 0 {
		t.Fatalf("unexpected counts: %+v", resolution)
	}

	_, err = svc.ResolveOne(ctx, stale.ID, PageInput{Body: articleHTML})
	if !errors.Is(err, resolver.ErrRenderFailed) {
		t.Fatalf("ResolveOne() error = %v, want ErrRenderFailed", err)
	}
	if status, code, _, _ := mapError(err); status != http.StatusConflict || code != "RENDER_FAILED" {
		t.Fatalf("mapError() = %d %s", status, code)
	}

	if _, err := svc.GetAnnotation(ctx, stale.ID); err != nil {
		t.Fatalf("skipped annotation must be kept: %v", err)
	}
}

func TestReanchorFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	first := createOnPage(t, svc, "brown fox", "fox")
	second := createOnPage(t, svc, "lazy dog", "dog")

	started, err := svc.StartReanchor(ctx, first.ID)
	if err != nil {
		t.Fatalf("StartReanchor() error = %v", err)
	}
	if started.PageURL != pageURL || started.AnnotationID != first.ID {
		t.Fatalf("unexpected session: %+v", started)
	}
	if _, err := svc.StartReanchor(ctx, second.ID); !errors.Is(err, session.ErrSessionActive) {
		t.Fatalf("second StartReanchor() error = %v", err)
	}

	if _, err := svc.ConfirmReanchor(ctx, pageURL, CaptureInput{Page: PageInput{Body: articleHTML}, Quote: "purple elephant"}); err == nil {
		t.Fatal("expected failed capture")
	}
	if active, err := svc.ActiveReanchor(ctx, pageURL); err != nil || active.AnnotationID != first.ID {
		t.Fatalf("failed capture must keep the session: %+v, %v", active, err)
	}

	updated, err := svc.ConfirmReanchor(ctx, pageURL, CaptureInput{Page: PageInput{Body: articleHTML}, Quote: "Second paragraph"})
	if err != nil {
		t.Fatalf("ConfirmReanchor() error = %v", err)
	}
	if updated.ID != first.ID || updated.Anchor.SelectedText != "Second paragraph" || updated.Updated == nil {
		t.Fatalf("unexpected re-anchored annotation: %+v", updated)
	}
	if updated.Text != "fox" {
		t.Fatalf("re-anchor must keep the note text, got %q", updated.Text)
	}
	if _, err := svc.ActiveReanchor(ctx, pageURL); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("session should end after confirm, err = %v", err)
	}

	if _, err := svc.StartReanchor(ctx, second.ID); err != nil {
		t.Fatalf("StartReanchor() after confirm error = %v", err)
	}
	if cancelled, err := svc.CancelReanchor(ctx, pageURL); err != nil || cancelled.AnnotationID != second.ID {
		t.Fatalf("CancelReanchor() = %+v, %v", cancelled, err)
	}
	if _, err := svc.CancelReanchor(ctx, pageURL); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("second cancel error = %v", err)
	}
	if _, err := svc.ConfirmReanchor(ctx, pageURL, CaptureInput{Quote: "fox"}); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("confirm without session error = %v", err)
	}
	unchanged, _ := svc.GetAnnotation(ctx, second.ID)
	if unchanged.Anchor.SelectedText != "lazy dog" {
		t.Fatalf("cancel must not change the anchor: %+v", unchanged.Anchor)
	}
}

func TestReanchorDeletedAnnotationEndsSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created := createOnPage(t, svc, "brown fox", "fox")

	if _, err := svc.StartReanchor(ctx, created.ID); err != nil {
		t.Fatalf("StartReanchor() error = %v", err)
	}
	if err := svc.DeleteAnnotation(ctx, created.ID); err != nil {
		t.Fatalf("DeleteAnnotation() error = %v", err)
	}
	if _, err := svc.ConfirmReanchor(ctx, pageURL, CaptureInput{Page: PageInput{Body: articleHTML}, Quote: "lazy dog"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("confirm on deleted annotation error = %v", err)
	}
	if _, err := svc.ActiveReanchor(ctx, pageURL); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("session should be gone, err = %v", err)
	}
}

func TestPageStatsAndClearPage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	createOnPage(t, svc, "brown fox", "one")
	createOnPage(t, svc, "lazy dog", "two")
	if _, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{URL: pageURL, Text: "pin", Anchor: ptr(anchor.NewCoordinate(1, 2))}); err != nil {
		t.Fatalf("create pin: %v", err)
	}
	if _, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{URL: "https://example.com/other", Text: "elsewhere", Anchor: ptr(anchor.NewCoordinate(1, 2))}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	stats, err := svc.PageStats(ctx, pageURL)
	if err != nil {
		t.Fatalf("PageStats() error = %v", err)
	}
	want := PageStats{URL: pageURL, PageCount: 3, TextCount: 2, PinCount: 1, TotalCount: 4, PageTotal: 2}
	if stats != want {
		t.Fatalf("PageStats() = %+v, want %+v", stats, want)
	}

	removed, err := svc.ClearPage(ctx, pageURL)
	if err != nil || removed != 3 {
		t.Fatalf("ClearPage() = %d, %v", removed, err)
	}
	stats, _ = svc.PageStats(ctx, pageURL)
	if stats.PageCount != 0 || stats.TotalCount != 1 {
		t.Fatalf("unexpected stats after clear: %+v", stats)
	}
	if _, err := svc.ClearPage(ctx, " "); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("blank url error = %v", err)
	}
}

func TestSearchAndExport(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fox, err := svc.CreateAnnotation(ctx, CreateAnnotationInput{URL: pageURL, Text: "fox facts", Tags: []string{"animals"}, Capture: quoteCapture("brown fox")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	createOnPage(t, svc, "lazy dog", "sleepy")

	resp := svc.Search(ctx, search.Query{Text: "fox"})
	if resp.Total < 1 || resp.Results[0].ID != fox.ID {
		t.Fatalf("unexpected search response: %+v", resp)
	}
	if tagged := svc.Search(ctx, search.Query{Tag: "animals"}); tagged.Total != 1 {
		t.Fatalf("tag search total = %d", tagged.Total)
	}

	result, err := svc.Export(ctx, export.Request{Format: export.FormatJSON})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.HasPrefix(result.Filename, "lens-annotations-") || !strings.HasSuffix(result.Filename, ".json") {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	var exported []store.Annotation
	if err := json.Unmarshal(result.Data, &exported); err != nil || len(exported) != 2 {
		t.Fatalf("exported %d annotations, err %v", len(exported), err)
	}

	if _, err := svc.Export(ctx, export.Request{Format: "docx"}); !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Fatalf("docx export error = %v", err)
	}
	if _, err := svc.PublishExport(ctx, export.Request{Format: export.FormatJSON}); !errors.Is(err, export.ErrUploadUnavailable) {
		t.Fatalf("publish without storage error = %v", err)
	}
}

func TestSnapshotPageValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SnapshotPage(ctx, snapshot.Page{Body: "<p>x</p>"}, "", ""); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("missing url error = %v", err)
	}
	if _, err := svc.SnapshotPage(ctx, snapshot.Page{URL: pageURL}, "", ""); domainCode(err) != "VALIDATION_ERROR" {
		t.Fatalf("missing body error = %v", err)
	}
	version, err := svc.SnapshotPage(ctx, snapshot.Page{URL: pageURL, Body: "# Notes", Format: snapshot.FormatMarkdown}, "", "")
	if err != nil {
		t.Fatalf("SnapshotPage() error = %v", err)
	}
	if version.Author != "lens" {
		t.Fatalf("default author = %q", version.Author)
	}
	page, _, err := svc.PageSnapshot(ctx, pageURL, version.Hash)
	if err != nil || page.Format != snapshot.FormatMarkdown {
		t.Fatalf("PageSnapshot() = %+v, %v", page, err)
	}

	none, err := svc.PageHistory(ctx, "https://example.com/never", 5)
	if err != nil || len(none) != 0 {
		t.Fatalf("history of unknown page = %+v, %v", none, err)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags([]string{" a", "", "b ", "  ", "c"})
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("normalizeTags() = %v", got)
	}
	if got := normalizeTags(nil); got == nil || len(got) != 0 {
		t.Fatalf("normalizeTags(nil) = %#v", got)
	}
}

func ptr[T any](v T) *T { return &v }
