package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

// DirClient serves file documents from a local directory tree. Each user owns
// the subtree <root>/<userID>/; the document ID is the path relative to that
// subtree. It is the built-in source for single-host deployments; the other
// document types come from external application clients.
type DirClient struct {
	root string
}

// NewDirClient creates a client rooted at dir. The directory must exist.
func NewDirClient(dir string) (*DirClient, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &DirClient{root: abs}, nil
}

// indexableExt reports whether a file extension is worth indexing and maps it
// to a MIME type.
func indexableExt(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown", true
	case ".txt", ".text", ".log":
		return "text/plain", true
	case ".pdf":
		return "application/pdf", true
	default:
		return "", false
	}
}

// userPath resolves a document ID to an absolute path inside the user's
// subtree, rejecting traversal outside it.
func (c *DirClient) userPath(userID, docID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	base := filepath.Join(c.root, userID)
	p := filepath.Join(base, filepath.FromSlash(docID))
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("document id %q escapes user subtree", docID)
	}
	return p, nil
}

func (c *DirClient) ListDocuments(ctx context.Context, userID string, _ document.Type) ([]Listing, error) {
	base := filepath.Join(c.root, userID)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil // user has no files yet
	}

	var out []Listing
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != base {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := indexableExt(path); !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		out = append(out, Listing{
			DocID:      rel,
			ModifiedAt: info.ModTime().UTC(),
			Title:      d.Name(),
			Path:       rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", userID, err)
	}
	return out, nil
}

func (c *DirClient) FetchContent(ctx context.Context, userID string, _ document.Type, docID string) (*Content, error) {
	p, err := c.userPath(userID, docID)
	if err != nil {
		return nil, err
	}
	mime, ok := indexableExt(p)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrNotFound, docID)
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", docID, err)
	}
	return &Content{
		Data:     data,
		Title:    filepath.Base(p),
		Path:     docID,
		MimeType: mime,
	}, nil
}

func (c *DirClient) CheckAccess(ctx context.Context, userID string, _ document.Type, docID string) (bool, error) {
	p, err := c.userPath(userID, docID)
	if err != nil {
		return false, nil // malformed IDs are simply not readable
	}
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat %s: %w", docID, err)
	}
	return true, nil
}
