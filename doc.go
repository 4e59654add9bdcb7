// Package asyncrt implements a small, deferred, cancellable, single-completion
// asynchronous action runtime: Promise/Async values composed by sequencing
// combinators, grouped into structured-concurrency Bundles, and iterated
// lazily through the sibling iter package. Fiber (sibling package fiber)
// hosts tasks in a logical execution context bound to a serialising executor.
//
// The design follows java.util.concurrent's Future/CompletionStage family in
// spirit but is re-expressed in idiomatic Go: explicit error returns, no
// checked exceptions, context.Context on every blocking operation, and a
// trampolined sequencing engine so long `Then` chains never grow the stack.
package asyncrt
