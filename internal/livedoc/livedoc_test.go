package livedoc

import (
	"context"
	"errors"
	"testing"

	"lens/api/internal/chrome"
	"lens/api/internal/docmodel"
)

const rendered = `{
  "root": {"k":"el","tag":"BODY","id":"","cls":"","top":0,"c":[
    {"k":"el","tag":"h2","id":"intro","cls":"","top":10,"c":[{"k":"text","text":"Animals","top":12}]},
    {"k":"el","tag":"p","id":"","cls":"lead big","top":60,"c":[
      {"k":"text","text":"The quick brown fox","top":62},
      {"k":"text","text":"","top":80}
    ]},
    {"k":"el","tag":"div","id":"lens-detached-sidebar","cls":"","top":0,"c":[{"k":"text","text":"overlay","top":0}]}
  ]},
  "scrollY": 120,
  "scrollHeight": 2400,
  "viewportHeight": 900
}`

func TestDecodeSnapshot(t *testing.T) {
	tree, err := decodeSnapshot([]byte(rendered))
	if err != nil {
		t.Fatalf("decodeSnapshot() error = %v", err)
	}

	m := tree.Metrics()
	if m.ScrollY != 120 || m.ScrollHeight != 2400 || m.ViewportHeight != 900 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if tree.Root.Tag != "body" {
		t.Errorf("root tag = %q", tree.Root.Tag)
	}

	var spans []*docmodel.Node
	for s := range tree.Spans() {
		spans = append(spans, s)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans (overlay excluded, empty dropped), got %d", len(spans))
	}
	if spans[1].Text != "The quick brown fox" || spans[1].Top != 62 {
		t.Errorf("unexpected span: %+v", spans[1])
	}
	if got := docmodel.Path(spans[1].Parent); got != "p.lead" {
		t.Errorf("Path() = %q", got)
	}
	if spans[0].Parent.ID != "intro" || spans[0].Parent.Parent != tree.Root {
		t.Errorf("parent links not restored")
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "{}", `{"root":{"k":"text","text":"x"}}`} {
		if _, err := decodeSnapshot([]byte(raw)); err == nil {
			t.Errorf("decodeSnapshot(%q) expected error", raw)
		}
	}
}

func TestSnapshotWithoutBrowser(t *testing.T) {
	if _, err := chrome.Binary(); err == nil {
		t.Skip("browser available")
	}
	_, err := Snapshot(context.Background(), "https://example.com", Options{})
	if !errors.Is(err, chrome.ErrNotInstalled) {
		t.Fatalf("Snapshot() error = %v, want ErrNotInstalled", err)
	}
}
