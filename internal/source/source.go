// Package source defines the contracts corpusd consumes from the
// per-application CRUD clients. The clients themselves live outside this
// repository; corpusd only depends on these three capabilities: enumerate
// documents with modification timestamps, fetch raw content, and check read
// access.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

var (
	// ErrNotFound is returned by FetchContent when the document no longer
	// exists at the source. The processor treats it as an implicit delete.
	ErrNotFound = errors.New("document not found")

	// ErrTransient marks a source failure worth retrying (network flake,
	// upstream 5xx). Implementations wrap their errors with it.
	ErrTransient = errors.New("transient source error")
)

// Listing is one entry of a document enumeration.
type Listing struct {
	DocID      string
	ModifiedAt time.Time
	Title      string
	// Path is set for path-addressed sources (files); empty otherwise.
	Path string
}

// Content is the raw payload of one document.
type Content struct {
	Data  []byte
	Title string
	Path  string
	// MimeType guides extraction: text/markdown, text/plain, application/pdf.
	MimeType string
}

// Lister enumerates a user's documents of one type with their current
// modification timestamps.
type Lister interface {
	ListDocuments(ctx context.Context, userID string, docType document.Type) ([]Listing, error)
}

// Fetcher retrieves raw document content. Returns ErrNotFound when the
// document is gone.
type Fetcher interface {
	FetchContent(ctx context.Context, userID string, docType document.Type, docID string) (*Content, error)
}

// AccessChecker answers whether a user may currently read a document.
type AccessChecker interface {
	CheckAccess(ctx context.Context, userID string, docType document.Type, docID string) (bool, error)
}

// Client bundles the three capabilities one source application provides.
type Client interface {
	Lister
	Fetcher
	AccessChecker
}

// Registry maps document types to their source clients. A type without a
// registered client is simply not enabled for sync.
type Registry struct {
	clients map[document.Type]Client
}

// NewRegistry creates a registry over the given per-type clients.
func NewRegistry(clients map[document.Type]Client) *Registry {
	if clients == nil {
		clients = make(map[document.Type]Client)
	}
	return &Registry{clients: clients}
}

// Client returns the client for a document type, or false if the type is not
// enabled.
func (r *Registry) Client(docType document.Type) (Client, bool) {
	c, ok := r.clients[docType]
	return c, ok
}

// EnabledTypes returns every type with a registered client, in the stable
// document.AllTypes order.
func (r *Registry) EnabledTypes() []document.Type {
	out := make([]document.Type, 0, len(r.clients))
	for _, t := range document.AllTypes {
		if _, ok := r.clients[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
