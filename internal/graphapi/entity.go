package graphapi

import (
	"context"
	"math"
	"time"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/triple"
	"github.com/dreamware/tripledb/internal/value"
)

// typePredicateName is the reserved predicate an entity's $type lives
// under, alongside its ordinary predicates, in the owning shard's chunk
// store.
const typePredicateName = "$type"

func typePredicate() ident.Predicate { return ident.Predicate(typePredicateName) }

// Entity is the typed record spec §4.10's getEntity assembles:
// { $id, $type, _namespace, _localId, ...predicates }.
type Entity map[string]any

// GetEntity assembles id's entity by gathering every live (id, predicate,
// object) triple from the owning shard. It returns (nil, false, nil) when
// id has no live records.
func (o *Orchestrator) GetEntity(ctx context.Context, id ident.EntityID) (Entity, bool, error) {
	shardID, err := o.shardFor(id)
	if err != nil {
		return nil, false, err
	}
	records, err := o.client.Records(ctx, shardID, id, 0)
	if err != nil {
		return nil, false, err
	}
	latest := triple.LatestPerPredicate(records, id, math.MaxInt64)
	if !anyLive(latest) {
		return nil, false, nil
	}
	return buildEntity(id, latest), true, nil
}

func anyLive(latest map[ident.Predicate]triple.Triple) bool {
	for _, t := range latest {
		if !t.IsTombstone() {
			return true
		}
	}
	return false
}

func buildEntity(id ident.EntityID, latest map[ident.Predicate]triple.Triple) Entity {
	resolved, err := ident.ResolveNamespace(id)
	e := Entity{"$id": string(id)}
	if err == nil {
		e["_namespace"] = string(resolved.Namespace)
		e["_localId"] = resolved.LocalID
	}
	for pred, t := range latest {
		if t.IsTombstone() {
			continue
		}
		if string(pred) == typePredicateName {
			e["$type"] = valueToAny(t.Object)
			continue
		}
		e[string(pred)] = valueToAny(t.Object)
	}
	return e
}

// CreateEntity fails with DuplicateEntity if id already exists, or with
// ValidationError if entityType is empty. Otherwise it issues one chunk
// write per (id, predicate) tuple — one for $type plus one per entry in
// props — all under a single transaction id, per spec §4.10.
func (o *Orchestrator) CreateEntity(ctx context.Context, id ident.EntityID, entityType string, props map[string]any) (Entity, error) {
	if entityType == "" {
		return nil, errs.New(errs.ValidationError, "createEntity requires a non-empty $type")
	}
	_, found, err := o.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, errs.New(errs.DuplicateEntity, "entity %q already exists", id)
	}

	shardID, err := o.shardFor(id)
	if err != nil {
		return nil, err
	}
	batch, err := predicateBatch(id, props, value.String(entityType))
	if err != nil {
		return nil, err
	}
	if err := o.client.AppendBatch(ctx, shardID, batch); err != nil {
		return nil, err
	}

	entity, _, err := o.GetEntity(ctx, id)
	return entity, err
}

// UpdateEntity fails with EntityNotFound if id is absent. It merges props
// into id's record: one new triple per provided predicate, all under a
// single transaction id.
func (o *Orchestrator) UpdateEntity(ctx context.Context, id ident.EntityID, props map[string]any) (Entity, error) {
	_, found, err := o.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.New(errs.EntityNotFound, "entity %q does not exist", id)
	}

	shardID, err := o.shardFor(id)
	if err != nil {
		return nil, err
	}
	batch, err := predicateBatch(id, props, value.Value{})
	if err != nil {
		return nil, err
	}
	if err := o.client.AppendBatch(ctx, shardID, batch); err != nil {
		return nil, err
	}

	entity, _, err := o.GetEntity(ctx, id)
	return entity, err
}

// predicateBatch builds the single-txId batch of triples createEntity or
// updateEntity writes. typeValue, if non-zero, is written under $type
// (createEntity only — updateEntity passes the zero Value to skip it).
func predicateBatch(id ident.EntityID, props map[string]any, typeValue value.Value) ([]triple.Triple, error) {
	txID, err := ident.GenerateTxID(time.Now().UnixMilli(), nil)
	if err != nil {
		return nil, err
	}
	ts := time.Now().UnixMilli()

	batch := make([]triple.Triple, 0, len(props)+1)
	if typeValue.Kind != value.KindNull {
		batch = append(batch, triple.New(id, typePredicate(), typeValue, ts, txID))
	}
	for name, raw := range props {
		pred, err := ident.NewPredicate(name)
		if err != nil {
			return nil, err
		}
		val, err := coerceValue(raw)
		if err != nil {
			return nil, err
		}
		batch = append(batch, triple.New(id, pred, val, ts, txID))
	}
	return batch, nil
}

// DeleteEntity fails with EntityNotFound if id is absent. It emits a
// tombstone per live predicate, all under a single transaction id.
func (o *Orchestrator) DeleteEntity(ctx context.Context, id ident.EntityID) error {
	shardID, err := o.shardFor(id)
	if err != nil {
		return err
	}
	records, err := o.client.Records(ctx, shardID, id, 0)
	if err != nil {
		return err
	}
	latest := triple.LatestPerPredicate(records, id, math.MaxInt64)
	if !anyLive(latest) {
		return errs.New(errs.EntityNotFound, "entity %q does not exist", id)
	}

	txID, err := ident.GenerateTxID(time.Now().UnixMilli(), nil)
	if err != nil {
		return err
	}
	ts := time.Now().UnixMilli()

	batch := make([]triple.Triple, 0, len(latest))
	for pred, t := range latest {
		if t.IsTombstone() {
			continue
		}
		batch = append(batch, triple.Tombstone(id, pred, ts, txID))
	}
	return o.client.AppendBatch(ctx, shardID, batch)
}
