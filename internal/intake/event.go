// Package intake turns raw change notifications from external sources into
// queued document tasks. Events are normalized per document type, then
// debounced so editing bursts collapse into a single reindex.
package intake

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

var (
	ErrMissingUser   = errors.New("intake: event missing user id")
	ErrMissingDocRef = errors.New("intake: event carries neither document id nor path")
	ErrUnknownType   = errors.New("intake: unknown document type")
	ErrClosed        = errors.New("intake: closed")
)

// Event is a raw change notification. Sources that only know a path (file
// sync callbacks, typically) may omit DocID; a synthetic ID is derived from
// the path so deletions stay addressable.
type Event struct {
	UserID     string        `json:"user_id"`
	DocType    document.Type `json:"doc_type"`
	DocID      string        `json:"doc_id,omitempty"`
	Path       string        `json:"path,omitempty"`
	Deleted    bool          `json:"deleted,omitempty"`
	ModifiedAt time.Time     `json:"modified_at,omitempty"`
}

// Normalizer converts one source's events into document tasks.
type Normalizer interface {
	Normalize(ev Event) (document.Task, error)
}

// NormalizerFunc adapts a function to the Normalizer interface.
type NormalizerFunc func(ev Event) (document.Task, error)

func (f NormalizerFunc) Normalize(ev Event) (document.Task, error) { return f(ev) }

// Registry holds one normalizer per document type.
type Registry struct {
	normalizers map[document.Type]Normalizer
}

// NewRegistry returns a registry with the default normalizer for every known
// document type. File events additionally accept path-only references.
func NewRegistry() *Registry {
	r := &Registry{normalizers: make(map[document.Type]Normalizer, len(document.AllTypes))}
	for _, t := range document.AllTypes {
		r.normalizers[t] = NormalizerFunc(normalizeDefault)
	}
	r.normalizers[document.TypeFile] = NormalizerFunc(normalizeFile)
	return r
}

// Register replaces the normalizer for a document type.
func (r *Registry) Register(t document.Type, n Normalizer) {
	r.normalizers[t] = n
}

// Normalize dispatches an event to its type's normalizer.
func (r *Registry) Normalize(ev Event) (document.Task, error) {
	n, ok := r.normalizers[ev.DocType]
	if !ok {
		return document.Task{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.DocType)
	}
	return n.Normalize(ev)
}

func normalizeDefault(ev Event) (document.Task, error) {
	if ev.UserID == "" {
		return document.Task{}, ErrMissingUser
	}
	if ev.DocID == "" {
		return document.Task{}, ErrMissingDocRef
	}
	return buildTask(ev, ev.DocID), nil
}

// normalizeFile accepts path-only events. A deletion that arrives without an
// ID maps to the same synthetic ID the indexer used, so the stored chunks
// stay addressable by path.
func normalizeFile(ev Event) (document.Task, error) {
	if ev.UserID == "" {
		return document.Task{}, ErrMissingUser
	}
	docID := ev.DocID
	if docID == "" {
		if ev.Path == "" {
			return document.Task{}, ErrMissingDocRef
		}
		docID = document.SyntheticID(ev.Path)
	}
	return buildTask(ev, docID), nil
}

func buildTask(ev Event, docID string) document.Task {
	op := document.OpIndex
	if ev.Deleted {
		op = document.OpDelete
	}
	modified := ev.ModifiedAt
	if modified.IsZero() {
		modified = time.Now().UTC()
	}
	return document.Task{
		UserID:     ev.UserID,
		DocType:    ev.DocType,
		DocID:      docID,
		Op:         op,
		ModifiedAt: modified,
		SourceHint: ev.Path,
	}
}
