package search

import (
	"strings"

	"lens/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	URL     string   `json:"url"`
	Text    string   `json:"text"`
	Quote   string   `json:"quote"`
	Tags    []string `json:"tags"`
	Snippet string   `json:"snippet"`
}

// Query describes a search request. URL and Tag narrow the hits; Text may be
// empty when a filter is given.
type Query struct {
	Text   string
	URL    string
	Tag    string
	Limit  int
	Offset int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for an annotation.
type Record struct {
	ID    string   `json:"id"`
	URL   string   `json:"url"`
	Text  string   `json:"text"`
	Quote string   `json:"quote"`
	Tags  []string `json:"tags"`
}

// RecordFor flattens an annotation into its searchable fields. Coordinate
// pins have no quote.
func RecordFor(a store.Annotation) Record {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return Record{
		ID:    a.ID,
		URL:   a.URL,
		Text:  a.Text,
		Quote: a.Anchor.SelectedText,
		Tags:  tags,
	}
}

func (r Record) result(snippet string) Result {
	if snippet == "" {
		snippet = r.Text
	}
	return Result{ID: r.ID, URL: r.URL, Text: r.Text, Quote: r.Quote, Tags: r.Tags, Snippet: snippet}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
