// Package trace provides structured tracing for the lowering pipeline.
//
// Events are spans (begin/end pairs) and instant points, tagged with a
// scope that says how fine-grained they are. A Level filters scopes.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	abilower run move_right --trace=- --trace-level=detail
//
// # Architecture
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr), text or NDJSON
//   - RingTracer: circular buffer kept in memory, dumped on failure
//   - MultiTracer: fans out to several tracers
//
// # Scopes
//
//   - ScopeDriver: CLI commands and table loading
//   - ScopeUnit: one compilation unit
//   - ScopeFunc: one function body
//   - ScopeNode: single lowering decisions
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeFunc, "func:main", parentID)
//	defer span.End("")
package trace
