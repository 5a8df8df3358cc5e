// Package livedoc builds a document tree from a page rendered by headless
// Chrome, carrying the real layout positions of every node.
package livedoc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"lens/api/internal/chrome"
	"lens/api/internal/docmodel"
)

// Options controls the emulated browser window.
type Options struct {
	Width   int64
	Height  int64
	ScrollY float64
	Timeout time.Duration
}

var DefaultOptions = Options{Width: 1280, Height: 900, Timeout: 30 * time.Second}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultOptions.Width
	}
	if o.Height <= 0 {
		o.Height = DefaultOptions.Height
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions.Timeout
	}
	return o
}

// serializeScript walks document.body and reports each node with its
// page-relative top. Text nodes are measured through a Range.
const serializeScript = `(() => {
  const range = document.createRange();
  const top = (rect) => rect.top + window.scrollY;
  const walk = (node) => {
    if (node.nodeType === Node.TEXT_NODE) {
      range.selectNodeContents(node);
      return {k: "text", text: node.data, top: top(range.getBoundingClientRect())};
    }
    if (node.nodeType !== Node.ELEMENT_NODE) return null;
    const out = {
      k: "el",
      tag: node.tagName.toLowerCase(),
      id: node.id || "",
      cls: typeof node.className === "string" ? node.className : "",
      top: top(node.getBoundingClientRect()),
      c: []
    };
    for (const child of node.childNodes) {
      const s = walk(child);
      if (s) out.c.push(s);
    }
    return out;
  };
  return JSON.stringify({
    root: walk(document.body),
    scrollY: window.scrollY,
    scrollHeight: document.documentElement.scrollHeight,
    viewportHeight: window.innerHeight
  });
})()`

type snapshotNode struct {
	Kind     string         `json:"k"`
	Tag      string         `json:"tag"`
	ID       string         `json:"id"`
	Class    string         `json:"cls"`
	Text     string         `json:"text"`
	Top      float64        `json:"top"`
	Children []snapshotNode `json:"c"`
}

type snapshot struct {
	Root           *snapshotNode `json:"root"`
	ScrollY        float64       `json:"scrollY"`
	ScrollHeight   float64       `json:"scrollHeight"`
	ViewportHeight float64       `json:"viewportHeight"`
}

// Snapshot loads url in headless Chrome and returns the rendered body.
func Snapshot(ctx context.Context, url string, opts Options) (*docmodel.Tree, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var raw string
	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(opts.Width, opts.Height, 1, false),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if opts.ScrollY > 0 {
		actions = append(actions, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %f)", opts.ScrollY), nil))
	}
	actions = append(actions, chromedp.Evaluate(serializeScript, &raw))

	if err := chrome.Run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", url, err)
	}
	return decodeSnapshot([]byte(raw))
}

func decodeSnapshot(raw []byte) (*docmodel.Tree, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Root == nil || snap.Root.Kind != "el" {
		return nil, fmt.Errorf("decode snapshot: no body element")
	}
	return docmodel.NewTree(convert(*snap.Root), docmodel.Metrics{
		ScrollY:        snap.ScrollY,
		ScrollHeight:   snap.ScrollHeight,
		ViewportHeight: snap.ViewportHeight,
	}), nil
}

func convert(s snapshotNode) *docmodel.Node {
	if s.Kind == "text" {
		n := docmodel.Text(s.Text)
		n.Top = s.Top
		return n
	}
	n := docmodel.Element(s.Tag, strings.TrimSpace(s.ID), s.Class)
	n.Top = s.Top
	for _, child := range s.Children {
		if child.Kind == "text" && child.Text == "" {
			continue
		}
		n.Append(convert(child))
	}
	return n
}
