// Package storage provides a minimal key-value abstraction used as the
// durable-ish backing store for per-session RPC state: cursors a caller has
// asked the server to remember (storeCursor/getCursor/clearCursor) and the
// caller-settable state value exercised by setState/getState (spec §6's
// caller-contract utility methods, wired up in internal/rpcserver).
//
// MemoryStore is the only implementation. It satisfies the Store interface
// for tests and for a single-process deployment; nothing in this repo
// requires values to survive a process restart since session state is
// explicitly caller-managed (a caller that needs durability calls setState
// again after reconnecting).
package storage
