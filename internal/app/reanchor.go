package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"lens/api/internal/search"
	"lens/api/internal/session"
	"lens/api/internal/store"
)

// StartReanchor opens the page's re-anchor session for an annotation. The
// session lasts until it is confirmed or cancelled.
func (s *Service) StartReanchor(ctx context.Context, annotationID string) (session.ReanchorSession, error) {
	a, err := s.store.Get(ctx, annotationID)
	if err != nil {
		return session.ReanchorSession{}, err
	}
	rs := session.ReanchorSession{PageURL: a.URL, AnnotationID: a.ID, StartedAt: s.now().UTC()}
	if err := s.sessions.Start(ctx, rs); err != nil {
		return session.ReanchorSession{}, err
	}
	return rs, nil
}

func (s *Service) ActiveReanchor(ctx context.Context, pageURL string) (session.ReanchorSession, error) {
	if strings.TrimSpace(pageURL) == "" {
		return session.ReanchorSession{}, validationError("url is required")
	}
	return s.sessions.Active(ctx, pageURL)
}

// ConfirmReanchor captures the new selection and replaces the annotation's
// anchor with it. A failed capture leaves the session open so the user can
// select again.
func (s *Service) ConfirmReanchor(ctx context.Context, pageURL string, input CaptureInput) (store.Annotation, error) {
	rs, err := s.ActiveReanchor(ctx, pageURL)
	if err != nil {
		return store.Annotation{}, err
	}
	if input.Page.URL == "" {
		input.Page.URL = rs.PageURL
	}
	captured, err := s.CaptureAnchor(ctx, input)
	if err != nil {
		return store.Annotation{}, err
	}

	updated, err := s.store.ReplaceAnchor(ctx, rs.AnnotationID, captured)
	if errors.Is(err, store.ErrNotFound) {
		if _, endErr := s.sessions.End(ctx, rs.PageURL); endErr != nil {
			log.Printf("reanchor: end session for %s: %v", rs.PageURL, endErr)
		}
		return store.Annotation{}, err
	}
	if err != nil {
		return store.Annotation{}, err
	}
	if _, err := s.sessions.End(ctx, rs.PageURL); err != nil && !errors.Is(err, session.ErrNoSession) {
		log.Printf("reanchor: end session for %s: %v", rs.PageURL, err)
	}
	s.search.Index(search.RecordFor(updated))
	return updated, nil
}

func (s *Service) CancelReanchor(ctx context.Context, pageURL string) (session.ReanchorSession, error) {
	if strings.TrimSpace(pageURL) == "" {
		return session.ReanchorSession{}, validationError("url is required")
	}
	return s.sessions.End(ctx, pageURL)
}
