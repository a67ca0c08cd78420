package position

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/value"
)

func mustEntity(t *testing.T, raw string) ident.EntityID {
	t.Helper()
	id, err := ident.NewEntityID(raw)
	require.NoError(t, err)
	return id
}

func mustPredicate(t *testing.T, raw string) ident.Predicate {
	t.Helper()
	p, err := ident.NewPredicate(raw)
	require.NoError(t, err)
	return p
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestByPredicateObjectFindsSubjects(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	alice := mustEntity(t, "https://e2e/user/1")
	bob := mustEntity(t, "https://e2e/user/2")
	status := mustPredicate(t, "status")
	active := value.String("active")

	require.NoError(t, idx.Index(ctx, alice, status, active, 100))
	require.NoError(t, idx.Index(ctx, bob, status, active, 200))
	require.NoError(t, idx.Index(ctx, alice, status, value.String("inactive"), 50))

	entries, err := idx.ByPredicateObject(ctx, status, active)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, bob, entries[0].Subject, "most recent first")
}

func TestByObjectFindsSubjectPredicatePairs(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	alice := mustEntity(t, "https://e2e/user/1")
	friend := mustEntity(t, "https://e2e/user/2")
	ref, err := value.Ref(friend)
	require.NoError(t, err)

	friendsPred := mustPredicate(t, "friends")
	require.NoError(t, idx.Index(ctx, alice, friendsPred, ref, 100))

	entries, err := idx.ByObject(ctx, ref)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, alice, entries[0].Subject)
	assert.Equal(t, friendsPred, entries[0].Predicate)
}

func TestIndexIsIdempotent(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	alice := mustEntity(t, "https://e2e/user/1")
	status := mustPredicate(t, "status")
	active := value.String("active")

	require.NoError(t, idx.Index(ctx, alice, status, active, 100))
	require.NoError(t, idx.Index(ctx, alice, status, active, 100))

	entries, err := idx.ByPredicateObject(ctx, status, active)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
