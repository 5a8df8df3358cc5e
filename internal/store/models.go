package store

import (
	"time"

	"lens/api/internal/anchor"
)

// CollectionKey is the key the whole annotation collection is stored under.
const CollectionKey = "lens_annotations"

type ReplyType string

const (
	ReplyComment  ReplyType = "comment"
	ReplyAgree    ReplyType = "agree"
	ReplyDisagree ReplyType = "disagree"
)

func (t ReplyType) Valid() bool {
	switch t {
	case ReplyComment, ReplyAgree, ReplyDisagree:
		return true
	}
	return false
}

type Reply struct {
	ID           string    `json:"id"`
	AnnotationID string    `json:"annotationId"`
	Type         ReplyType `json:"type"`
	Text         string    `json:"text"`
	Created      time.Time `json:"created"`
}

// Annotation is a note attached to a page. Anchor changes only through an
// explicit re-anchor; replies are appended or removed, never edited.
type Annotation struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Created   time.Time     `json:"created"`
	Updated   *time.Time    `json:"updated"`
	Text      string        `json:"text"`
	Tags      []string      `json:"tags"`
	Anchor    anchor.Anchor `json:"anchor"`
	Replies   []Reply       `json:"replies"`
	Published bool          `json:"published"`
}

// AnnotationPatch carries the user-editable fields of an update.
type AnnotationPatch struct {
	Text      *string   `json:"text,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Published *bool     `json:"published,omitempty"`
}
