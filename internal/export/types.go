// Package export renders the annotation collection for download: the raw
// JSON backup, a browsable HTML overview and a PDF of that overview.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

func (f Format) Valid() bool {
	switch f {
	case FormatJSON, FormatHTML, FormatPDF:
		return true
	}
	return false
}

func (f Format) mimeType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Request contains parameters for an export operation. An empty URL exports
// every page.
type Request struct {
	Format Format
	URL    string
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// Location is set once the result has been uploaded.
	Location string
}

var (
	// ErrUnsupportedFormat is returned for formats other than json, html and pdf.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrUploadUnavailable is returned when no object storage is configured.
	ErrUploadUnavailable = errors.New("export upload not configured")
)

func dateStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
