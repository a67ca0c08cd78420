package graphapi

import (
	"context"
	"strings"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/ident"
)

// Query implements spec §4.10's path-expression dialect: "entity.pred1.
// pred2…". The first segment is resolved as a local id against the
// orchestrator's default namespace — ident.FormEntityID/ResolveNamespace
// exist specifically for this local-id/namespace pairing, and a literal
// absolute http(s) URL embedded in a dot-delimited string would itself
// contain ambiguous dots, so the dialect does not accept one there.
// Remaining segments are predicate names chained through PathTraverse.
func (o *Orchestrator) Query(ctx context.Context, queryString string, opts TraverseOptions) ([]Entity, Page, error) {
	segments := strings.Split(queryString, ".")
	if len(segments) == 0 || segments[0] == "" {
		return nil, Page{}, errs.New(errs.ValidationError, "query string must start with an entity reference")
	}

	startID, err := ident.FormEntityID(o.defaultNamespace, segments[0])
	if err != nil {
		return nil, Page{}, err
	}

	if len(segments) == 1 {
		entity, found, err := o.GetEntity(ctx, startID)
		if err != nil {
			return nil, Page{}, err
		}
		if !found {
			return nil, Page{}, nil
		}
		return []Entity{entity}, Page{}, nil
	}

	path := make([]ident.Predicate, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		pred, err := ident.NewPredicate(seg)
		if err != nil {
			return nil, Page{}, err
		}
		path = append(path, pred)
	}
	return o.PathTraverse(ctx, startID, path, opts)
}
