package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"lens/api/internal/anchor"
	"lens/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var overviewTemplate = template.Must(template.New("overview.html").Funcs(template.FuncMap{
	"plural": plural,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/overview.html"))

// TemplateData holds data for overview rendering
type TemplateData struct {
	GeneratedAt time.Time
	Total       int
	Pages       []TemplatePage
}

// TemplatePage groups a page's annotations in creation order.
type TemplatePage struct {
	URL         string
	Annotations []TemplateAnnotation
}

type TemplateAnnotation struct {
	Pinned    bool
	Quote     string
	Text      string
	Tags      []string
	Created   time.Time
	Published bool
	Replies   []TemplateReply
}

type TemplateReply struct {
	Type    string
	Text    string
	Created time.Time
}

// NewTemplateData groups annotations by URL, pages ordered by their first
// annotation.
func NewTemplateData(all []store.Annotation, now time.Time) TemplateData {
	data := TemplateData{GeneratedAt: now, Total: len(all), Pages: []TemplatePage{}}
	index := make(map[string]int)
	for _, a := range all {
		i, ok := index[a.URL]
		if !ok {
			i = len(data.Pages)
			index[a.URL] = i
			data.Pages = append(data.Pages, TemplatePage{URL: a.URL})
		}
		data.Pages[i].Annotations = append(data.Pages[i].Annotations, templateAnnotation(a))
	}
	return data
}

func templateAnnotation(a store.Annotation) TemplateAnnotation {
	ta := TemplateAnnotation{
		Pinned:    a.Anchor.Type == anchor.KindCoordinate,
		Quote:     a.Anchor.SelectedText,
		Text:      a.Text,
		Tags:      a.Tags,
		Created:   a.Created,
		Published: a.Published,
	}
	for _, r := range a.Replies {
		ta.Replies = append(ta.Replies, TemplateReply{Type: string(r.Type), Text: r.Text, Created: r.Created})
	}
	return ta
}

// RenderOverviewHTML renders the all-annotations page.
func RenderOverviewHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := overviewTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
