package graphapi

import (
	"go.uber.org/zap"

	"github.com/dreamware/tripledb/internal/ident"
	"github.com/dreamware/tripledb/internal/router"
)

// Orchestrator implements spec §4.10's public operations. It holds only
// references to a router and a ShardClient (spec §5's resource-ownership
// rule: "the orchestrator holds only references") and carries no mutable
// state of its own.
type Orchestrator struct {
	log *zap.SugaredLogger

	router           *router.Router
	client           ShardClient
	defaultNamespace ident.Namespace
}

// New constructs an Orchestrator. defaultNamespace is used to resolve local
// ids into entity ids for the query() path-expression dialect.
func New(rt *router.Router, client ShardClient, defaultNamespace ident.Namespace, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		log:              log,
		router:           rt,
		client:           client,
		defaultNamespace: defaultNamespace,
	}
}

func (o *Orchestrator) shardFor(id ident.EntityID) (string, error) {
	route, err := o.router.Route(id)
	if err != nil {
		return "", err
	}
	return route.ShardID, nil
}
