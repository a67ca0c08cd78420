package rpcserver

import (
	"context"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/graphapi"
	"github.com/dreamware/tripledb/internal/ident"
)

// callGraphOp maps one of the §4.10 orchestrator operations onto h.orch,
// coercing the JSON-decoded args into the Go types Orchestrator expects.
// Numbers decode from JSON as float64, which is exactly the shape
// graphapi's value coercion already accepts for entity properties, so args
// maps pass straight through to CreateEntity/UpdateEntity unchanged.
func (h *Handler) callGraphOp(ctx context.Context, method string, args map[string]any) (any, error) {
	if h.orch == nil {
		return nil, errs.New(errs.Internal, "method %q requires a graph orchestrator, none configured", method)
	}

	switch method {
	case "getEntity":
		id, err := entityID(args, "id")
		if err != nil {
			return nil, err
		}
		ent, found, err := h.orch.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"entity": ent, "found": found}, nil

	case "createEntity":
		id, err := entityID(args, "id")
		if err != nil {
			return nil, err
		}
		entityType, _ := args["type"].(string)
		ent, err := h.orch.CreateEntity(ctx, id, entityType, props(args, "props"))
		if err != nil {
			return nil, err
		}
		return ent, nil

	case "updateEntity":
		id, err := entityID(args, "id")
		if err != nil {
			return nil, err
		}
		ent, err := h.orch.UpdateEntity(ctx, id, props(args, "props"))
		if err != nil {
			return nil, err
		}
		return ent, nil

	case "deleteEntity":
		id, err := entityID(args, "id")
		if err != nil {
			return nil, err
		}
		if err := h.orch.DeleteEntity(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "traverse":
		startID, err := entityID(args, "startId")
		if err != nil {
			return nil, err
		}
		pred, err := predicate(args, "predicate")
		if err != nil {
			return nil, err
		}
		entities, page, err := h.orch.Traverse(ctx, startID, pred, traverseOptions(args))
		if err != nil {
			return nil, err
		}
		return pagedResult(entities, page), nil

	case "reverseTraverse":
		targetID, err := entityID(args, "targetId")
		if err != nil {
			return nil, err
		}
		pred, err := predicate(args, "predicate")
		if err != nil {
			return nil, err
		}
		entities, page, err := h.orch.ReverseTraverse(ctx, targetID, pred, traverseOptions(args))
		if err != nil {
			return nil, err
		}
		return pagedResult(entities, page), nil

	case "pathTraverse":
		startID, err := entityID(args, "startId")
		if err != nil {
			return nil, err
		}
		path, err := predicatePath(args, "path")
		if err != nil {
			return nil, err
		}
		entities, page, err := h.orch.PathTraverse(ctx, startID, path, traverseOptions(args))
		if err != nil {
			return nil, err
		}
		return pagedResult(entities, page), nil

	case "query":
		queryString, _ := args["query"].(string)
		entities, page, err := h.orch.Query(ctx, queryString, traverseOptions(args))
		if err != nil {
			return nil, err
		}
		return pagedResult(entities, page), nil

	case "batchGet":
		ids, err := entityIDList(args, "ids")
		if err != nil {
			return nil, err
		}
		result, err := h.orch.BatchGet(ctx, ids)
		if err != nil {
			return nil, err
		}
		return batchResultToAny(result), nil

	case "batchCreate":
		specs, err := createSpecs(args, "specs")
		if err != nil {
			return nil, err
		}
		result, err := h.orch.BatchCreate(ctx, specs)
		if err != nil {
			return nil, err
		}
		return batchResultToAny(result), nil

	case "batchExecute":
		ops, err := h.batchOps(args, "ops")
		if err != nil {
			return nil, err
		}
		result, err := h.orch.BatchExecute(ctx, ops)
		if err != nil {
			return nil, err
		}
		return batchResultToAny(result), nil

	default:
		return nil, errs.New(errs.ValidationError, "unknown method %q", method)
	}
}

func pagedResult(entities []graphapi.Entity, page graphapi.Page) map[string]any {
	return map[string]any{
		"entities": entities,
		"cursor":   page.Cursor,
		"hasMore":  page.HasMore,
	}
}

func batchResultToAny(r graphapi.BatchResult) map[string]any {
	items := make([]map[string]any, len(r.Items))
	for i, item := range r.Items {
		m := map[string]any{"entity": item.Entity}
		if item.Err != nil {
			m["error"] = toEnvelope("", item.Err)
		}
		items[i] = m
	}
	return map[string]any{
		"items":        items,
		"successCount": r.SuccessCount,
		"errorCount":   r.ErrorCount,
	}
}

func predicatePath(args map[string]any, key string) ([]ident.Predicate, error) {
	raw, _ := args[key].([]any)
	path := make([]ident.Predicate, 0, len(raw))
	for _, v := range raw {
		s, _ := v.(string)
		p, err := ident.NewPredicate(s)
		if err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, nil
}

func entityIDList(args map[string]any, key string) ([]ident.EntityID, error) {
	raw, _ := args[key].([]any)
	ids := make([]ident.EntityID, 0, len(raw))
	for _, v := range raw {
		s, _ := v.(string)
		id, err := ident.NewEntityID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func createSpecs(args map[string]any, key string) ([]graphapi.CreateSpec, error) {
	raw, _ := args[key].([]any)
	specs := make([]graphapi.CreateSpec, 0, len(raw))
	for _, v := range raw {
		m, _ := v.(map[string]any)
		id, err := entityID(m, "id")
		if err != nil {
			return nil, err
		}
		entityType, _ := m["type"].(string)
		specs = append(specs, graphapi.CreateSpec{ID: id, Type: entityType, Props: props(m, "props")})
	}
	return specs, nil
}

// batchOps builds BatchOp closures from a declarative {op, id, type, props}
// shape, since graphapi.BatchOp is itself a closure and has no JSON form of
// its own. op is one of "create", "update", "delete".
func (h *Handler) batchOps(args map[string]any, key string) ([]graphapi.BatchOp, error) {
	raw, _ := args[key].([]any)
	ops := make([]graphapi.BatchOp, 0, len(raw))
	for _, v := range raw {
		m, _ := v.(map[string]any)
		op, _ := m["op"].(string)
		id, err := entityID(m, "id")
		if err != nil {
			return nil, err
		}
		entityType, _ := m["type"].(string)
		entityProps := props(m, "props")

		switch op {
		case "create":
			ops = append(ops, func(ctx context.Context) (graphapi.Entity, error) {
				return h.orch.CreateEntity(ctx, id, entityType, entityProps)
			})
		case "update":
			ops = append(ops, func(ctx context.Context) (graphapi.Entity, error) {
				return h.orch.UpdateEntity(ctx, id, entityProps)
			})
		case "delete":
			ops = append(ops, func(ctx context.Context) (graphapi.Entity, error) {
				return nil, h.orch.DeleteEntity(ctx, id)
			})
		default:
			return nil, errs.New(errs.ValidationError, "batchExecute: unknown op %q", op)
		}
	}
	return ops, nil
}
