// Command lens captures and resolves annotation anchors against local page
// files, and exports the annotation collection, using the same storage as
// lensd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"lens/api/internal/app"
	"lens/api/internal/config"
	"lens/api/internal/export"
	"lens/api/internal/search"
	"lens/api/internal/session"
	"lens/api/internal/snapshot"
	"lens/api/internal/store"
)

// CLI defines the command-line interface for lens.
var CLI struct {
	Store string `help:"Collection backend (memory, sqlite, postgres, redis); defaults to LENS_STORE"`

	Capture CaptureCmd `cmd:"" help:"Capture an anchor for a quote in a page file"`
	Resolve ResolveCmd `cmd:"" help:"Resolve a page's annotations against a page file or stored snapshot"`
	Export  ExportCmd  `cmd:"" help:"Export annotations as json, html or pdf"`
}

type PageFlags struct {
	URL     string  `required:"" help:"Page URL"`
	Page    string  `help:"Page file (html, markdown or ProseMirror JSON)" type:"path"`
	Format  string  `help:"Page file format (html, markdown, prosemirror); guessed from the extension when empty"`
	Version string  `help:"Stored snapshot version to use instead of a page file"`
	ScrollY float64 `name:"scroll-y" help:"Scroll offset of the viewport"`
}

func (p PageFlags) input() (app.PageInput, error) {
	in := app.PageInput{URL: p.URL, Version: p.Version, ScrollY: p.ScrollY, Format: snapshot.Format(p.Format)}
	if p.Page == "" {
		return in, nil
	}
	body, err := os.ReadFile(p.Page)
	if err != nil {
		return in, fmt.Errorf("read page: %w", err)
	}
	in.Body = string(body)
	if in.Format == "" {
		in.Format = formatFromExt(p.Page)
	}
	return in, nil
}

func formatFromExt(path string) snapshot.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return snapshot.FormatMarkdown
	case ".json":
		return snapshot.FormatProseMirror
	}
	return snapshot.FormatHTML
}

// CaptureCmd prints the anchor for a quote, or saves it as an annotation
// when --note is given.
type CaptureCmd struct {
	PageFlags `embed:""`
	Quote string   `required:"" help:"Text to anchor"`
	Note  string   `help:"Store an annotation with this text"`
	Tags  []string `help:"Tags for the stored annotation"`
	Save  bool     `help:"Commit the page file as a snapshot"`
}

func (c *CaptureCmd) Run(svc *app.Service) error {
	ctx := context.Background()
	page, err := c.input()
	if err != nil {
		return err
	}
	page.Save = c.Save
	capture := app.CaptureInput{Page: page, Quote: c.Quote}

	if c.Note == "" {
		captured, err := svc.CaptureAnchor(ctx, capture)
		if err != nil {
			return err
		}
		return printJSON(captured)
	}
	created, err := svc.CreateAnnotation(ctx, app.CreateAnnotationInput{URL: c.URL, Text: c.Note, Tags: c.Tags, Capture: &capture})
	if err != nil {
		return err
	}
	return printJSON(created)
}

type ResolveCmd struct {
	PageFlags `embed:""`
	JSON bool `help:"Print the full resolution as JSON"`
}

func (c *ResolveCmd) Run(svc *app.Service) error {
	page, err := c.input()
	if err != nil {
		return err
	}
	resolution, err := svc.ResolvePage(context.Background(), page)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(resolution)
	}
	for _, p := range resolution.Placements {
		switch p.Status {
		case app.StatusAnchored:
			fmt.Printf("%s  %-10s  %q at %s\n", p.Annotation.ID, p.Confidence, p.Highlight.Text, p.Path)
		case app.StatusPinned:
			fmt.Printf("%s  %-10s  (%.0f, %.0f)\n", p.Annotation.ID, "pin", p.Pin.X, p.Pin.Y)
		default:
			fmt.Printf("%s  %-10s  %q\n", p.Annotation.ID, p.Confidence, p.Annotation.Anchor.SelectedText)
		}
	}
	fmt.Printf("%d anchored, %d pinned, %d detached\n", resolution.Anchored, resolution.Pinned, resolution.Detached)
	return nil
}

type ExportCmd struct {
	Format  string `help:"Export format" enum:"json,html,pdf" default:"json"`
	URL     string `help:"Only export this page"`
	Out     string `help:"Output directory" type:"path" default:"."`
	Publish bool   `help:"Upload to the configured MinIO bucket instead of writing a file"`
}

func (c *ExportCmd) Run(svc *app.Service) error {
	ctx := context.Background()
	req := export.Request{Format: export.Format(c.Format), URL: c.URL}
	if c.Publish {
		result, err := svc.PublishExport(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(result.Location)
		return nil
	}
	result, err := svc.Export(ctx, req)
	if err != nil {
		return err
	}
	path := filepath.Join(c.Out, result.Filename)
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Println(path)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newService(ctx context.Context, cfg config.Config) (*app.Service, func(), error) {
	kv, _, err := app.OpenKV(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	annotations := store.NewAnnotationStore(kv)

	var uploader *export.Uploader
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		uploader, err = export.NewUploader(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOSecure)
		if err != nil {
			_ = kv.Close()
			return nil, nil, err
		}
	}

	svc := app.New(
		cfg,
		annotations,
		session.NewMemoryStore(),
		snapshot.New(cfg.SnapshotsDir),
		search.NewService(nil, search.NewScan(annotations)),
		export.NewService(annotations, uploader),
	)
	return svc, func() { _ = kv.Close() }, nil
}

// runCommand closes the store before the result reaches FatalIfErrorf,
// which exits the process.
func runCommand(run func() error, closeStore func()) error {
	defer closeStore()
	return run()
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("lens"),
		kong.Description("Capture, resolve and export Lens annotations."),
		kong.UsageOnError(),
	)

	cfg := config.Load()
	if CLI.Store != "" {
		cfg.Store = strings.ToLower(CLI.Store)
	}
	svc, closeStore, err := newService(context.Background(), cfg)
	kctx.FatalIfErrorf(err)

	kctx.FatalIfErrorf(runCommand(func() error { return kctx.Run(svc) }, closeStore))
}
