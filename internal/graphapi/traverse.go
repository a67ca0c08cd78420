package graphapi

import (
	"context"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/value"
)

const (
	defaultTraverseLimit = 100
	maxTraverseLimit     = 1000
	defaultMaxDepth      = 1
)

// TraverseOptions bounds a traversal, per spec §4.10's
// {maxDepth=1, limit=100, filter, cursor}.
type TraverseOptions struct {
	Filter   func(Entity) bool
	Cursor   string
	MaxDepth int
	Limit    int
}

func normalizeTraverseOptions(opts TraverseOptions) TraverseOptions {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultTraverseLimit
	}
	if opts.Limit > maxTraverseLimit {
		opts.Limit = maxTraverseLimit
	}
	return opts
}

// refsFromEntity extracts the REF or REF_ARRAY targets an entity holds
// under predName, if any.
func refsFromEntity(e Entity, predName string) []ident.EntityID {
	switch v := e[predName].(type) {
	case ident.EntityID:
		return []ident.EntityID{v}
	case []ident.EntityID:
		return v
	default:
		return nil
	}
}

func applyFilter(entities []Entity, filter func(Entity) bool) []Entity {
	if filter == nil {
		return entities
	}
	kept := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if filter(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Traverse returns entities reachable in one hop via predicate from
// startId (spec §4.10). Absent startId yields an empty, not-found result
// rather than an error.
func (o *Orchestrator) Traverse(ctx context.Context, startID ident.EntityID, predicate ident.Predicate, opts TraverseOptions) ([]Entity, Page, error) {
	opts = normalizeTraverseOptions(opts)

	start, found, err := o.GetEntity(ctx, startID)
	if err != nil {
		return nil, Page{}, err
	}
	if !found {
		return nil, Page{}, nil
	}

	resolved, err := o.resolveRefs(ctx, refsFromEntity(start, string(predicate)))
	if err != nil {
		return nil, Page{}, err
	}
	resolved = applyFilter(resolved, opts.Filter)

	page, pg := paginate(resolved, decodeCursor(opts.Cursor), opts.Limit)
	return page, pg, nil
}

// ReverseTraverse returns entities S such that (S, predicate, targetId) is
// live, per spec §4.10's "follows references in reverse". Because the
// subject of such a triple can live on any shard, this fans out across
// every shard the orchestrator's ShardClient knows about rather than
// consulting the router.
func (o *Orchestrator) ReverseTraverse(ctx context.Context, targetID ident.EntityID, predicate ident.Predicate, opts TraverseOptions) ([]Entity, Page, error) {
	opts = normalizeTraverseOptions(opts)

	targetVal, err := value.Ref(targetID)
	if err != nil {
		return nil, Page{}, err
	}

	seen := make(map[ident.EntityID]bool)
	var subjects []ident.EntityID
	for _, shardID := range o.client.ShardIDs() {
		entries, err := o.client.ByPredicateObject(ctx, shardID, predicate, targetVal)
		if err != nil {
			return nil, Page{}, err
		}
		for _, entry := range entries {
			if seen[entry.Subject] {
				continue
			}
			seen[entry.Subject] = true
			subjects = append(subjects, entry.Subject)
		}
	}

	resolved, err := o.resolveRefs(ctx, subjects)
	if err != nil {
		return nil, Page{}, err
	}
	live := resolved[:0]
	for _, e := range resolved {
		for _, ref := range refsFromEntity(e, string(predicate)) {
			if ref == targetID {
				live = append(live, e)
				break
			}
		}
	}
	resolved = applyFilter(live, opts.Filter)

	page, pg := paginate(resolved, decodeCursor(opts.Cursor), opts.Limit)
	return page, pg, nil
}

// PathTraverse chains per-hop traversals along path, deduplicating each
// hop's frontier so cycles terminate: the walk halts after len(path) hops,
// or after opts.MaxDepth hops when that is set and smaller, regardless of
// how the graph is shaped.
func (o *Orchestrator) PathTraverse(ctx context.Context, startID ident.EntityID, path []ident.Predicate, opts TraverseOptions) ([]Entity, Page, error) {
	depth := len(path)
	if opts.MaxDepth > 0 && opts.MaxDepth < depth {
		depth = opts.MaxDepth
	}
	opts = normalizeTraverseOptions(opts)

	frontier := []ident.EntityID{startID}
	visited := map[ident.EntityID]bool{startID: true}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		predicate := path[hop]
		next := make([]ident.EntityID, 0, len(frontier))

		for _, id := range frontier {
			entity, found, err := o.GetEntity(ctx, id)
			if err != nil {
				return nil, Page{}, err
			}
			if !found {
				continue
			}
			for _, target := range refsFromEntity(entity, string(predicate)) {
				if visited[target] {
					continue
				}
				visited[target] = true
				next = append(next, target)
			}
		}
		frontier = next
	}

	resolved, err := o.resolveRefs(ctx, frontier)
	if err != nil {
		return nil, Page{}, err
	}
	resolved = applyFilter(resolved, opts.Filter)

	page, pg := paginate(resolved, decodeCursor(opts.Cursor), opts.Limit)
	return page, pg, nil
}

func (o *Orchestrator) resolveRefs(ctx context.Context, ids []ident.EntityID) ([]Entity, error) {
	resolved := make([]Entity, 0, len(ids))
	for _, id := range ids {
		e, found, err := o.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		resolved = append(resolved, e)
	}
	return resolved, nil
}
