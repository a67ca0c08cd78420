package graphapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/errs"
)

func TestQueryWithNoPathReturnsTheEntityItself(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	require.NoError(t, createNamed(t, o, mustID(t, testNamespace+"/widgets/q1"), "Widget", "solo"))

	results, page, err := o.Query(ctx, "widgets/q1", TraverseOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "solo", results[0]["name"])
	assert.False(t, page.HasMore)
}

func TestQueryChainsPredicatesAcrossLocalID(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()

	owner := mustID(t, testNamespace+"/people/q1")
	require.NoError(t, createNamed(t, o, owner, "Person", "grace"))
	widget := mustID(t, testNamespace+"/widgets/q2")
	_, err := o.CreateEntity(ctx, widget, "Widget", map[string]any{"owner": owner})
	require.NoError(t, err)

	results, _, err := o.Query(ctx, "widgets/q2.owner", TraverseOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "grace", results[0]["name"])
}

func TestQueryRejectsEmptyString(t *testing.T) {
	o := testOrchestrator(t, 1)
	_, _, err := o.Query(context.Background(), "", TraverseOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestQueryRejectsInvalidPredicateSegment(t *testing.T) {
	o := testOrchestrator(t, 1)
	_, _, err := o.Query(context.Background(), "widgets/q3.has space", TraverseOptions{})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidIdentifier, errs.KindOf(err))
}
