package source

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

// FakeClient is an in-memory Client used by tests across packages. Documents
// are keyed (userID, docID); access defaults to granted.
type FakeClient struct {
	mu       sync.Mutex
	listings map[string][]Listing          // userID -> listings
	contents map[string]*Content           // userID|docID -> content
	denied   map[string]bool               // userID|docID -> access revoked
	fetchErr map[string]error              // userID|docID -> forced error
	listErr  error
	accessFn func(userID, docID string) (bool, error)
}

// NewFakeClient returns an empty fake source.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		listings: make(map[string][]Listing),
		contents: make(map[string]*Content),
		denied:   make(map[string]bool),
		fetchErr: make(map[string]error),
	}
}

func fakeKey(userID, docID string) string { return userID + "|" + docID }

// Put registers a document listing and its content.
func (f *FakeClient) Put(userID string, l Listing, c *Content) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Replace an existing listing for the same id.
	kept := f.listings[userID][:0]
	for _, existing := range f.listings[userID] {
		if existing.DocID != l.DocID {
			kept = append(kept, existing)
		}
	}
	f.listings[userID] = append(kept, l)
	f.contents[fakeKey(userID, l.DocID)] = c
}

// Remove drops a document from listings and contents.
func (f *FakeClient) Remove(userID, docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.listings[userID][:0]
	for _, existing := range f.listings[userID] {
		if existing.DocID != docID {
			kept = append(kept, existing)
		}
	}
	f.listings[userID] = kept
	delete(f.contents, fakeKey(userID, docID))
}

// Deny revokes read access for one document.
func (f *FakeClient) Deny(userID, docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[fakeKey(userID, docID)] = true
}

// FailFetch forces FetchContent for one document to return err.
func (f *FakeClient) FailFetch(userID, docID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr[fakeKey(userID, docID)] = err
}

// SetListError forces ListDocuments to fail.
func (f *FakeClient) SetListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// SetAccessFunc overrides the access decision entirely.
func (f *FakeClient) SetAccessFunc(fn func(userID, docID string) (bool, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessFn = fn
}

func (f *FakeClient) ListDocuments(ctx context.Context, userID string, _ document.Type) ([]Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Listing, len(f.listings[userID]))
	copy(out, f.listings[userID])
	return out, nil
}

func (f *FakeClient) FetchContent(ctx context.Context, userID string, _ document.Type, docID string) (*Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[fakeKey(userID, docID)]; err != nil {
		return nil, err
	}
	c, ok := f.contents[fakeKey(userID, docID)]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *FakeClient) CheckAccess(ctx context.Context, userID string, _ document.Type, docID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accessFn != nil {
		return f.accessFn(userID, docID)
	}
	if f.denied[fakeKey(userID, docID)] {
		return false, nil
	}
	_, ok := f.contents[fakeKey(userID, docID)]
	return ok, nil
}

var _ Client = (*FakeClient)(nil)
