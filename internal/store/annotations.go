package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lens/api/internal/anchor"
)

// AnnotationStore persists the annotation collection as one value in a KV.
// Every mutation is a read-modify-write of the whole collection that either
// writes the complete new collection or nothing. Writers are not serialized;
// the last write wins.
type AnnotationStore struct {
	kv  KV
	key string
	now func() time.Time
}

func NewAnnotationStore(kv KV) *AnnotationStore {
	return &AnnotationStore{kv: kv, key: CollectionKey, now: time.Now}
}

func (s *AnnotationStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *AnnotationStore) load(ctx context.Context) ([]Annotation, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	if !ok || len(raw) == 0 {
		return []Annotation{}, nil
	}
	var all []Annotation
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode annotations: %w", err)
	}
	return all, nil
}

func (s *AnnotationStore) save(ctx context.Context, all []Annotation) error {
	if all == nil {
		all = []Annotation{}
	}
	payload, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, payload); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

// mutate applies fn to a freshly loaded collection and persists the result.
// Nothing is written when fn fails.
func (s *AnnotationStore) mutate(ctx context.Context, fn func([]Annotation) ([]Annotation, error)) error {
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(all)
	if err != nil {
		return err
	}
	return s.save(ctx, next)
}

func indexOf(all []Annotation, id string) int {
	for i, a := range all {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *AnnotationStore) List(ctx context.Context) ([]Annotation, error) {
	return s.load(ctx)
}

// ListByURL returns a page's annotations in creation order.
func (s *AnnotationStore) ListByURL(ctx context.Context, url string) ([]Annotation, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	page := make([]Annotation, 0)
	for _, a := range all {
		if a.URL == url {
			page = append(page, a)
		}
	}
	return page, nil
}

func (s *AnnotationStore) Get(ctx context.Context, id string) (Annotation, error) {
	all, err := s.load(ctx)
	if err != nil {
		return Annotation{}, err
	}
	idx := indexOf(all, id)
	if idx < 0 {
		return Annotation{}, fmt.Errorf("annotation %s: %w", id, ErrNotFound)
	}
	return all[idx], nil
}

func (s *AnnotationStore) Insert(ctx context.Context, a Annotation) error {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Replies == nil {
		a.Replies = []Reply{}
	}
	if a.Created.IsZero() {
		a.Created = s.now().UTC()
	}
	return s.mutate(ctx, func(all []Annotation) ([]Annotation, error) {
		if indexOf(all, a.ID) >= 0 {
			return nil, fmt.Errorf("annotation %s: %w", a.ID, ErrDuplicate)
		}
		return append(all, a), nil
	})
}

func (s *AnnotationStore) update(ctx context.Context, id string, fn func(*Annotation) error) (Annotation, error) {
	var updated Annotation
	err := s.mutate(ctx, func(all []Annotation) ([]Annotation, error) {
		idx := indexOf(all, id)
		if idx < 0 {
			return nil, fmt.Errorf("annotation %s: %w", id, ErrNotFound)
		}
		if err := fn(&all[idx]); err != nil {
			return nil, err
		}
		updated = all[idx]
		return all, nil
	})
	return updated, err
}

// Update applies the user-editable fields of patch and stamps Updated.
func (s *AnnotationStore) Update(ctx context.Context, id string, patch AnnotationPatch) (Annotation, error) {
	return s.update(ctx, id, func(a *Annotation) error {
		if patch.Text != nil {
			a.Text = *patch.Text
		}
		if patch.Tags != nil {
			a.Tags = append([]string{}, (*patch.Tags)...)
		}
		if patch.Published != nil {
			a.Published = *patch.Published
		}
		now := s.now().UTC()
		a.Updated = &now
		return nil
	})
}

// ReplaceAnchor swaps the whole anchor, as confirming a re-anchor does.
func (s *AnnotationStore) ReplaceAnchor(ctx context.Context, id string, next anchor.Anchor) (Annotation, error) {
	if err := next.Validate(); err != nil {
		return Annotation{}, err
	}
	return s.update(ctx, id, func(a *Annotation) error {
		a.Anchor = next
		now := s.now().UTC()
		a.Updated = &now
		return nil
	})
}

func (s *AnnotationStore) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(all []Annotation) ([]Annotation, error) {
		idx := indexOf(all, id)
		if idx < 0 {
			return nil, fmt.Errorf("annotation %s: %w", id, ErrNotFound)
		}
		return append(all[:idx:idx], all[idx+1:]...), nil
	})
}

// DeleteByURL removes every annotation of a page and reports how many.
func (s *AnnotationStore) DeleteByURL(ctx context.Context, url string) (int, error) {
	removed := 0
	err := s.mutate(ctx, func(all []Annotation) ([]Annotation, error) {
		kept := make([]Annotation, 0, len(all))
		for _, a := range all {
			if a.URL == url {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *AnnotationStore) AddReply(ctx context.Context, annotationID string, reply Reply) (Annotation, error) {
	reply.AnnotationID = annotationID
	if reply.Created.IsZero() {
		reply.Created = s.now().UTC()
	}
	return s.update(ctx, annotationID, func(a *Annotation) error {
		for _, existing := range a.Replies {
			if existing.ID == reply.ID {
				return fmt.Errorf("reply %s: %w", reply.ID, ErrDuplicate)
			}
		}
		a.Replies = append(a.Replies, reply)
		return nil
	})
}

// DeleteReply removes a reply; an unknown reply id leaves the annotation as is.
func (s *AnnotationStore) DeleteReply(ctx context.Context, annotationID, replyID string) (Annotation, error) {
	return s.update(ctx, annotationID, func(a *Annotation) error {
		kept := make([]Reply, 0, len(a.Replies))
		for _, r := range a.Replies {
			if r.ID != replyID {
				kept = append(kept, r)
			}
		}
		a.Replies = kept
		return nil
	})
}
