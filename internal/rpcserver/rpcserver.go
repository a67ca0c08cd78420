package rpcserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/dreamware/tripledb/internal/errs"
	"github.com/dreamware/tripledb/internal/graphapi"
	"github.com/dreamware/tripledb/internal/ident"
)

// Request is one caller-contract call per spec §6.
type Request struct {
	Args          map[string]any `json:"args"`
	CallerContext map[string]any `json:"callerContext,omitempty"`
	Method        string         `json:"method"`
	RequestID     string         `json:"requestId,omitempty"`
}

// ErrorEnvelope is the wire shape of a failed call, per spec §6.
type ErrorEnvelope struct {
	Details   map[string]any `json:"details,omitempty"`
	Type      string         `json:"type"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId,omitempty"`
}

// Response is one caller-contract reply per spec §6. Exactly one of Result
// or Error is set.
type Response struct {
	Result    any            `json:"result,omitempty"`
	Error     *ErrorEnvelope `json:"error,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
}

// Handler dispatches Requests against an Orchestrator and a Session.
type Handler struct {
	orch    *graphapi.Orchestrator
	session *Session
	log     *zap.SugaredLogger

	maxSubrequests int
}

// New builds a Handler. orch may be nil for a process (like a bare shard)
// that only serves the utility methods and not the §4.10 graph operations.
func New(orch *graphapi.Orchestrator, session *Session, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if session == nil {
		session = NewSession()
	}
	return &Handler{orch: orch, session: session, log: log, maxSubrequests: 1000}
}

// Session returns the handler's session, e.g. for a /health or /metrics
// handler that needs the connection count or state value.
func (h *Handler) Session() *Session { return h.session }

// Dispatch executes one Request and always returns a Response — errors are
// carried inside the envelope, never as a second return value, matching the
// caller contract's {requestId?, result | error} shape.
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	h.session.enter()
	defer h.session.leave()

	result, err := h.call(ctx, req.Method, req.Args)
	if err != nil {
		return Response{RequestID: req.RequestID, Error: toEnvelope(req.RequestID, err)}
	}
	return Response{RequestID: req.RequestID, Result: result}
}

func toEnvelope(requestID string, err error) *ErrorEnvelope {
	kind := errs.KindOf(err)
	env := &ErrorEnvelope{
		Type:      "error",
		Code:      string(kind),
		Message:   err.Error(),
		RequestID: requestID,
	}
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
	}
	if e != nil && e.Details != nil {
		env.Details = e.Details
	}
	return env
}

func (h *Handler) call(ctx context.Context, method string, args map[string]any) (any, error) {
	switch method {
	case "ping":
		return map[string]any{"ok": true}, nil
	case "setState":
		v, ok := args["value"]
		if !ok {
			return nil, errs.New(errs.ValidationError, "setState requires a \"value\" argument")
		}
		if err := h.session.SetState(v); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "setState")
		}
		return map[string]any{"ok": true}, nil
	case "getState":
		v, err := h.session.GetState()
		if err != nil {
			return nil, errs.Wrap(errs.Internal, err, "getState")
		}
		return map[string]any{"value": v}, nil
	case "storeCursor":
		id, _ := args["id"].(string)
		cursor, _ := args["cursor"].(string)
		if id == "" {
			return nil, errs.New(errs.ValidationError, "storeCursor requires an \"id\" argument")
		}
		if err := h.session.StoreCursor(id, cursor); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "storeCursor")
		}
		return map[string]any{"ok": true}, nil
	case "getCursor":
		id, _ := args["id"].(string)
		cursor, ok := h.session.GetCursor(id)
		return map[string]any{"cursor": cursor, "found": ok}, nil
	case "clearCursor":
		id, _ := args["id"].(string)
		if err := h.session.ClearCursor(id); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "clearCursor")
		}
		return map[string]any{"ok": true}, nil
	case "executeSubrequests":
		return h.executeSubrequests(ctx, args)
	default:
		return h.callGraphOp(ctx, method, args)
	}
}

// executeSubrequests runs a batch of nested Requests under the same
// 1000-entry cap every other batch operation enforces (spec §9: treated as
// a tooling/benchmark primitive, not a distinct data-plane path).
func (h *Handler) executeSubrequests(ctx context.Context, args map[string]any) (any, error) {
	raw, _ := args["requests"].([]any)
	if len(raw) > h.maxSubrequests {
		return nil, errs.New(errs.BatchSizeExceeded, "executeSubrequests: %d entries exceeds the maximum of %d", len(raw), h.maxSubrequests)
	}
	responses := make([]Response, 0, len(raw))
	for _, item := range raw {
		m, _ := item.(map[string]any)
		sub := Request{
			Method: asString(m["method"]),
			Args:   asArgs(m["args"]),
		}
		responses = append(responses, h.Dispatch(ctx, sub))
	}
	return map[string]any{"responses": responses}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asArgs(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func entityID(args map[string]any, key string) (ident.EntityID, error) {
	raw, _ := args[key].(string)
	if raw == "" {
		return "", errs.New(errs.ValidationError, "%q argument is required", key)
	}
	return ident.NewEntityID(raw)
}

func predicate(args map[string]any, key string) (ident.Predicate, error) {
	raw, _ := args[key].(string)
	if raw == "" {
		return "", errs.New(errs.ValidationError, "%q argument is required", key)
	}
	return ident.NewPredicate(raw)
}

func props(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func traverseOptions(args map[string]any) graphapi.TraverseOptions {
	opts := graphapi.TraverseOptions{}
	if v, ok := args["maxDepth"].(float64); ok {
		opts.MaxDepth = int(v)
	}
	if v, ok := args["limit"].(float64); ok {
		opts.Limit = int(v)
	}
	if v, ok := args["cursor"].(string); ok {
		opts.Cursor = v
	}
	return opts
}
