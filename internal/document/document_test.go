package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	key := Key{UserID: "alice", DocType: TypeNote, DocID: "42"}

	first := PointID(key, 0)
	second := PointID(key, 0)
	assert.Equal(t, first, second, "same key and chunk must map to the same point")

	other := PointID(key, 1)
	assert.NotEqual(t, first, other, "different chunks must map to different points")

	bob := PointID(Key{UserID: "bob", DocType: TypeNote, DocID: "42"}, 0)
	assert.NotEqual(t, first, bob, "different users must map to different points")
}

func TestPointID_IsUUID(t *testing.T) {
	id := PointID(Key{UserID: "alice", DocType: TypeFile, DocID: "a/b.md"}, 3)
	require.Len(t, id, 36)
	assert.Contains(t, id, "-")
}

func TestSyntheticID_StablePerPath(t *testing.T) {
	a := SyntheticID("/files/notes/todo.md")
	b := SyntheticID("/files/notes/todo.md")
	c := SyntheticID("/files/notes/other.md")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "path-")
}

func TestType_Valid(t *testing.T) {
	for _, typ := range AllTypes {
		assert.True(t, typ.Valid(), "type %s", typ)
	}
	assert.False(t, Type("bookmark").Valid())
	assert.False(t, Type("").Valid())
}

func TestKey_String(t *testing.T) {
	k := Key{UserID: "alice", DocType: TypeDeckCard, DocID: "7"}
	assert.Equal(t, "alice/deck_card/7", k.String())
}
