package access

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/source"
)

func newVerifier(t *testing.T, notes *source.FakeClient, cfg Config) *Verifier {
	t.Helper()
	reg := source.NewRegistry(map[document.Type]source.Client{
		document.TypeNote: notes,
	})
	return NewVerifier(reg, cfg, logging.NewTestLogger().Logger)
}

func TestCheck_AllowAndDeny(t *testing.T) {
	notes := source.NewFakeClient()
	notes.Put("alice", source.Listing{DocID: "ok"}, &source.Content{Data: []byte("x")})
	notes.Put("alice", source.Listing{DocID: "secret"}, &source.Content{Data: []byte("y")})
	notes.Deny("alice", "secret")
	v := newVerifier(t, notes, Config{})

	assert.True(t, v.Check(t.Context(), "alice", Ref{document.TypeNote, "ok"}))
	assert.False(t, v.Check(t.Context(), "alice", Ref{document.TypeNote, "secret"}))
}

func TestCheck_CachesWithinTTL(t *testing.T) {
	notes := source.NewFakeClient()
	var calls atomic.Int64
	notes.SetAccessFunc(func(userID, docID string) (bool, error) {
		calls.Add(1)
		return true, nil
	})
	v := newVerifier(t, notes, Config{TTL: time.Minute})
	ref := Ref{document.TypeNote, "n1"}

	for i := 0; i < 5; i++ {
		require.True(t, v.Check(t.Context(), "alice", ref))
	}
	assert.Equal(t, int64(1), calls.Load(), "repeat checks served from cache")
}

func TestCheck_TTLExpiryRechecks(t *testing.T) {
	notes := source.NewFakeClient()
	var calls atomic.Int64
	notes.SetAccessFunc(func(userID, docID string) (bool, error) {
		calls.Add(1)
		return true, nil
	})
	v := newVerifier(t, notes, Config{TTL: 20 * time.Millisecond})
	ref := Ref{document.TypeNote, "n1"}

	require.True(t, v.Check(t.Context(), "alice", ref))
	require.Eventually(t, func() bool {
		v.Check(t.Context(), "alice", ref)
		return calls.Load() >= 2
	}, time.Second, 10*time.Millisecond, "expired entries hit the source again")
}

func TestCheck_ErrorFailsClosed(t *testing.T) {
	notes := source.NewFakeClient()
	notes.SetAccessFunc(func(userID, docID string) (bool, error) {
		return true, errors.New("permission service down")
	})
	v := newVerifier(t, notes, Config{})

	assert.False(t, v.Check(t.Context(), "alice", Ref{document.TypeNote, "n1"}))
}

func TestCheck_UnknownTypeDenied(t *testing.T) {
	v := newVerifier(t, source.NewFakeClient(), Config{})
	assert.False(t, v.Check(t.Context(), "alice", Ref{document.TypeContact, "c1"}))
}

func TestFilter_ReturnsAllowedSubset(t *testing.T) {
	notes := source.NewFakeClient()
	notes.Put("alice", source.Listing{DocID: "a"}, &source.Content{Data: []byte("x")})
	notes.Put("alice", source.Listing{DocID: "b"}, &source.Content{Data: []byte("y")})
	notes.Deny("alice", "b")
	v := newVerifier(t, notes, Config{BatchSize: 2})

	refs := []Ref{
		{document.TypeNote, "a"},
		{document.TypeNote, "b"},
		{document.TypeNote, "a"}, // duplicates collapse
	}
	allowed, err := v.Filter(t.Context(), "alice", refs)
	require.NoError(t, err)
	assert.Equal(t, map[Ref]bool{{document.TypeNote, "a"}: true}, allowed)
}

func TestFilter_DeadlineAbortsBatch(t *testing.T) {
	notes := source.NewFakeClient()
	notes.SetAccessFunc(func(userID, docID string) (bool, error) {
		time.Sleep(300 * time.Millisecond) // backend ignoring cancellation
		return true, nil
	})
	v := newVerifier(t, notes, Config{})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	allowed, err := v.Filter(ctx, "alice", []Ref{{document.TypeNote, "slow"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, allowed, "a late answer is never granted")
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"the batch returns at the deadline, not when the backend does")
}

func TestInvalidate_ForcesRecheck(t *testing.T) {
	notes := source.NewFakeClient()
	var calls atomic.Int64
	notes.SetAccessFunc(func(userID, docID string) (bool, error) {
		calls.Add(1)
		return true, nil
	})
	v := newVerifier(t, notes, Config{TTL: time.Minute})
	ref := Ref{document.TypeNote, "n1"}

	v.Check(t.Context(), "alice", ref)
	v.Invalidate("alice", ref)
	v.Check(t.Context(), "alice", ref)
	assert.Equal(t, int64(2), calls.Load())
}
