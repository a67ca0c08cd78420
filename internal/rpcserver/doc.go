// Package rpcserver implements the caller contract of spec §6: every
// request is a {method, args, requestId?, callerContext?} envelope and every
// response is {requestId?, result | error}. Dispatch maps a method name onto
// either a §4.10 graphapi.Orchestrator operation or one of the utility
// methods (ping, setState, getState, storeCursor, getCursor, clearCursor,
// executeSubrequests) against a per-process Session.
//
// executeSubrequests is, per spec §9's design notes, "a liveness/benchmark
// primitive mixed with business dispatch" — it is handled here as a tooling
// operation that simply re-enters Dispatch for each sub-request under the
// same 1000-per-call cap as every other batch operation, not as a distinct
// data-plane path.
package rpcserver
