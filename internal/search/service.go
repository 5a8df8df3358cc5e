package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to the
// configured Searcher (PostgreSQL FTS or an in-process scan).
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Index pushes a record to Meilisearch (fire-and-forget).
func (s *Service) Index(r Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Index(r); err != nil {
			log.Printf("search: index annotation %s: %v", r.ID, err)
		}
	}()
}

// Delete removes an annotation from Meilisearch (fire-and-forget).
func (s *Service) Delete(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.Delete(id); err != nil {
			log.Printf("search: delete annotation %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every stored annotation to Meilisearch. Called at
// startup when Meilisearch is reachable.
func (s *Service) ReindexAll(ctx context.Context, annotations Lister) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	all, err := annotations.List(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]Record, 0, len(all))
	for _, a := range all {
		records = append(records, RecordFor(a))
	}
	if err := s.meili.Index(records...); err != nil {
		log.Printf("search: reindex annotations: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
