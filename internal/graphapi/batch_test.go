package graphapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

func TestBatchGetTalliesSuccessAndNotFound(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()

	present := mustID(t, testNamespace+"/widgets/b1")
	require.NoError(t, createNamed(t, o, present, "Widget", "known"))
	absent := mustID(t, testNamespace+"/widgets/b2")

	result, err := o.BatchGet(ctx, []ident.EntityID{present, absent})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, "known", result.Items[0].Entity["name"])
	assert.Error(t, result.Items[1].Err)
	assert.Equal(t, errs.EntityNotFound, errs.KindOf(result.Items[1].Err))
}

func TestBatchGetRejectsOversizedBatch(t *testing.T) {
	o := testOrchestrator(t, 1)
	ids := make([]ident.EntityID, maxBatchSize+1)
	for i := range ids {
		ids[i] = mustID(t, testNamespace+"/widgets/"+string(rune('a'+i%26))+"-"+itoa(i))
	}
	_, err := o.BatchGet(context.Background(), ids)
	require.Error(t, err)
	assert.Equal(t, errs.BatchSizeExceeded, errs.KindOf(err))
}

func TestBatchCreateTalliesPerEntry(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()

	dup := mustID(t, testNamespace+"/widgets/b3")
	require.NoError(t, createNamed(t, o, dup, "Widget", "exists"))

	specs := []CreateSpec{
		{ID: mustID(t, testNamespace+"/widgets/b4"), Type: "Widget", Props: map[string]any{"name": "new"}},
		{ID: dup, Type: "Widget", Props: nil},
	}
	result, err := o.BatchCreate(ctx, specs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, errs.DuplicateEntity, errs.KindOf(result.Items[1].Err))
}

func TestBatchExecuteRunsArbitraryOps(t *testing.T) {
	o := testOrchestrator(t, 1)
	ctx := context.Background()
	id := mustID(t, testNamespace+"/widgets/b5")

	ops := []BatchOp{
		func(ctx context.Context) (Entity, error) { return o.CreateEntity(ctx, id, "Widget", nil) },
		func(ctx context.Context) (Entity, error) { return o.UpdateEntity(ctx, id, map[string]any{"color": "blue"}) },
		func(ctx context.Context) (Entity, error) {
			e, _, err := o.GetEntity(ctx, mustID(t, testNamespace+"/widgets/missing-b5"))
			if err == nil && e == nil {
				return nil, errs.New(errs.EntityNotFound, "entity does not exist")
			}
			return e, err
		},
	}
	result, err := o.BatchExecute(ctx, ops)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
