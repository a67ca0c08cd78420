package graphapi

import (
	"context"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// maxBatchSize is the cap batchGet/batchCreate/batchExecute enforce, per
// spec §4.10.
const maxBatchSize = 1000

// BatchItemResult is one entry's outcome within a batch call: exactly one
// of Entity or Err is set.
type BatchItemResult struct {
	Entity Entity
	Err    error
}

// BatchResult is the per-index result set a batch call returns. Individual
// entry failures are recorded in Items but never abort the batch.
type BatchResult struct {
	Items        []BatchItemResult
	SuccessCount int
	ErrorCount   int
}

func checkBatchSize(n int, op string) error {
	if n > maxBatchSize {
		return errs.New(errs.BatchSizeExceeded, "%s: %d entries exceeds the maximum of %d", op, n, maxBatchSize)
	}
	return nil
}

// BatchGet resolves every id in ids independently, recording EntityNotFound
// for any id with no live record.
func (o *Orchestrator) BatchGet(ctx context.Context, ids []ident.EntityID) (BatchResult, error) {
	if err := checkBatchSize(len(ids), "batchGet"); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Items: make([]BatchItemResult, len(ids))}
	for i, id := range ids {
		entity, found, err := o.GetEntity(ctx, id)
		switch {
		case err != nil:
			result.Items[i] = BatchItemResult{Err: err}
			result.ErrorCount++
		case !found:
			result.Items[i] = BatchItemResult{Err: errs.New(errs.EntityNotFound, "entity %q does not exist", id)}
			result.ErrorCount++
		default:
			result.Items[i] = BatchItemResult{Entity: entity}
			result.SuccessCount++
		}
	}
	return result, nil
}

// CreateSpec is one entry of a batchCreate call.
type CreateSpec struct {
	ID    ident.EntityID
	Type  string
	Props map[string]any
}

// BatchCreate runs CreateEntity for each spec independently.
func (o *Orchestrator) BatchCreate(ctx context.Context, specs []CreateSpec) (BatchResult, error) {
	if err := checkBatchSize(len(specs), "batchCreate"); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Items: make([]BatchItemResult, len(specs))}
	for i, spec := range specs {
		entity, err := o.CreateEntity(ctx, spec.ID, spec.Type, spec.Props)
		if err != nil {
			result.Items[i] = BatchItemResult{Err: err}
			result.ErrorCount++
			continue
		}
		result.Items[i] = BatchItemResult{Entity: entity}
		result.SuccessCount++
	}
	return result, nil
}

// BatchOp is one arbitrary operation within a batchExecute call — a thin
// closure so batchExecute can carry any mix of the other operations
// (get/create/update/delete) under one size-capped, per-entry-tallied call.
type BatchOp func(ctx context.Context) (Entity, error)

// BatchExecute runs each op independently and tallies outcomes the same way
// BatchGet and BatchCreate do.
func (o *Orchestrator) BatchExecute(ctx context.Context, ops []BatchOp) (BatchResult, error) {
	if err := checkBatchSize(len(ops), "batchExecute"); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Items: make([]BatchItemResult, len(ops))}
	for i, op := range ops {
		entity, err := op(ctx)
		if err != nil {
			result.Items[i] = BatchItemResult{Err: err}
			result.ErrorCount++
			continue
		}
		result.Items[i] = BatchItemResult{Entity: entity}
		result.SuccessCount++
	}
	return result, nil
}
