package search

import (
	"context"
	"fmt"
	"sort"

	"lens/api/internal/similarity"
	"lens/api/internal/store"
)

// Lister is the slice of the annotation store a Scan needs.
type Lister interface {
	List(ctx context.Context) ([]store.Annotation, error)
}

// Scan implements Searcher by scoring every stored annotation in process.
// It backs deployments without PostgreSQL.
type Scan struct {
	annotations Lister
}

func NewScan(annotations Lister) *Scan {
	return &Scan{annotations: annotations}
}

func (s *Scan) Healthy() bool {
	return true
}

type scored struct {
	record Record
	score  float64
	order  int
}

func (s *Scan) Search(q Query) ([]Result, int, error) {
	if q.Text == "" && q.URL == "" && q.Tag == "" {
		return nil, 0, nil
	}
	all, err := s.annotations.List(context.Background())
	if err != nil {
		return nil, 0, fmt.Errorf("scan list: %w", err)
	}

	var hits []scored
	for i, a := range all {
		r := RecordFor(a)
		if q.URL != "" && r.URL != q.URL {
			continue
		}
		if q.Tag != "" && !hasTag(r.Tags, q.Tag) {
			continue
		}
		score := 1.0
		if q.Text != "" {
			score = scoreRecord(q.Text, r)
			if score == 0 {
				continue
			}
		}
		hits = append(hits, scored{record: r, score: score, order: i})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	total := len(hits)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	results := make([]Result, 0, end-start)
	for _, h := range hits[start:end] {
		results = append(results, h.record.result(""))
	}
	return results, total, nil
}

// scoreRecord is the best similarity of the query against the note, the
// quoted text or any single tag.
func scoreRecord(query string, r Record) float64 {
	best := max(similarity.SetSimilarity(query, r.Text), similarity.SetSimilarity(query, r.Quote))
	for _, tag := range r.Tags {
		best = max(best, similarity.SetSimilarity(query, tag))
	}
	return best
}
