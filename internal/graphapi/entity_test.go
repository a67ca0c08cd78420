package graphapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/errs"
)

func TestGetEntityReturnsNotFoundForUnknownID(t *testing.T) {
	o := testOrchestrator(t, 1)
	_, found, err := o.GetEntity(context.Background(), mustID(t, testNamespace+"/widgets/1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCreateEntityThenGetRoundTrips(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	id := mustID(t, testNamespace+"/widgets/1")

	entity, err := o.CreateEntity(ctx, id, "Widget", map[string]any{"name": "sprocket"})
	require.NoError(t, err)
	assert.Equal(t, "Widget", entity["$type"])
	assert.Equal(t, "sprocket", entity["name"])
	assert.Equal(t, string(id), entity["$id"])

	fetched, found, err := o.GetEntity(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sprocket", fetched["name"])
}

func TestCreateEntityRejectsDuplicate(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	id := mustID(t, testNamespace+"/widgets/2")

	_, err := o.CreateEntity(ctx, id, "Widget", nil)
	require.NoError(t, err)

	_, err = o.CreateEntity(ctx, id, "Widget", nil)
	require.Error(t, err)
	assert.Equal(t, errs.DuplicateEntity, errs.KindOf(err))
}

func TestCreateEntityRejectsMissingType(t *testing.T) {
	o := testOrchestrator(t, 1)
	_, err := o.CreateEntity(context.Background(), mustID(t, testNamespace+"/widgets/3"), "", nil)
	require.Error(t, err)
	assert.Equal(t, errs.ValidationError, errs.KindOf(err))
}

func TestUpdateEntityMergesProperties(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	id := mustID(t, testNamespace+"/widgets/4")

	_, err := o.CreateEntity(ctx, id, "Widget", map[string]any{"name": "sprocket"})
	require.NoError(t, err)

	updated, err := o.UpdateEntity(ctx, id, map[string]any{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, "sprocket", updated["name"])
	assert.Equal(t, "red", updated["color"])
}

func TestUpdateEntityRejectsMissingID(t *testing.T) {
	o := testOrchestrator(t, 1)
	_, err := o.UpdateEntity(context.Background(), mustID(t, testNamespace+"/widgets/5"), map[string]any{"a": "b"})
	require.Error(t, err)
	assert.Equal(t, errs.EntityNotFound, errs.KindOf(err))
}

func TestDeleteEntityRemovesLiveRecord(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	id := mustID(t, testNamespace+"/widgets/6")

	_, err := o.CreateEntity(ctx, id, "Widget", map[string]any{"name": "sprocket"})
	require.NoError(t, err)

	require.NoError(t, o.DeleteEntity(ctx, id))

	_, found, err := o.GetEntity(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteEntityRejectsMissingID(t *testing.T) {
	o := testOrchestrator(t, 1)
	err := o.DeleteEntity(context.Background(), mustID(t, testNamespace+"/widgets/7"))
	require.Error(t, err)
	assert.Equal(t, errs.EntityNotFound, errs.KindOf(err))
}

func TestCreateEntityAcceptsRefProperty(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	owner := mustID(t, testNamespace+"/people/1")
	_, err := o.CreateEntity(ctx, owner, "Person", nil)
	require.NoError(t, err)

	widget := mustID(t, testNamespace+"/widgets/8")
	entity, err := o.CreateEntity(ctx, widget, "Widget", map[string]any{"owner": owner})
	require.NoError(t, err)
	assert.Equal(t, owner, entity["owner"])
}
