// Package document defines the task and point model shared by the sync and
// search pipelines.
package document

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies which source application a document belongs to.
type Type string

const (
	TypeNote          Type = "note"
	TypeFile          Type = "file"
	TypeCalendarEvent Type = "calendar_event"
	TypeDeckCard      Type = "deck_card"
	TypeContact       Type = "contact"
	TypeNewsItem      Type = "news_item"
)

// AllTypes lists every known document type in a stable order.
var AllTypes = []Type{
	TypeNote, TypeFile, TypeCalendarEvent, TypeDeckCard, TypeContact, TypeNewsItem,
}

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	switch t {
	case TypeNote, TypeFile, TypeCalendarEvent, TypeDeckCard, TypeContact, TypeNewsItem:
		return true
	}
	return false
}

// Op is the operation a task asks the processor to perform.
type Op string

const (
	OpIndex  Op = "index"
	OpDelete Op = "delete"
)

// Task is an immutable unit of indexing work. Tasks are produced by the
// scanner and the event intake and consumed by processor workers. Delivery is
// at-least-once; the processor's write path is idempotent so duplicates are
// safe.
type Task struct {
	UserID     string
	DocType    Type
	DocID      string
	Op         Op
	ModifiedAt time.Time

	// SourceHint carries the document path or URI when the source provided
	// one. For deletions that arrived without a numeric id it is the only
	// handle on the document, and deletion happens by path filter.
	SourceHint string
}

// Key returns the identity triple used for debouncing and per-key ordering.
func (t Task) Key() Key {
	return Key{UserID: t.UserID, DocType: t.DocType, DocID: t.DocID}
}

// Key identifies one logical document for one user.
type Key struct {
	UserID  string
	DocType Type
	DocID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.UserID, k.DocType, k.DocID)
}

// pointNamespace is the UUIDv5 namespace for point IDs. Fixed so that the
// same (user, type, id, chunk) always maps to the same point.
var pointNamespace = uuid.MustParse("9f2c1b4e-5a77-4d8e-b1a3-6c0e8f2d9a41")

// PointID derives the deterministic vector-store point id for one chunk of a
// document. Re-indexing a document therefore overwrites its previous points
// instead of duplicating them.
func PointID(key Key, chunkIndex int) string {
	name := fmt.Sprintf("%s|%s|%s|%d", key.UserID, key.DocType, key.DocID, chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// SyntheticID derives a stable document id from a path, for sources whose
// deletion notifications carry only a path and no numeric id.
func SyntheticID(path string) string {
	sum := sha1.Sum([]byte(path))
	return "path-" + hex.EncodeToString(sum[:8])
}

// Payload field names stored on every vector point. Retrieval, access
// filtering and cleanup all filter on these keys, so they are defined once.
const (
	FieldUserID      = "user_id"
	FieldDocType     = "doc_type"
	FieldDocID       = "doc_id"
	FieldTitle       = "title"
	FieldPath        = "path"
	FieldContent     = "content"
	FieldChunkIndex  = "chunk_index"
	FieldTotalChunks = "total_chunks"
	FieldStartOffset = "start_offset"
	FieldEndOffset   = "end_offset"
	FieldPage        = "page"
	FieldPlaceholder = "is_placeholder"
	FieldIndexedAt   = "indexed_at"
)
