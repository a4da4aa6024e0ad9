// Package block implements the execution units a flow pipeline is built from:
// transform, many (one-to-many), sink and broadcast blocks. Each block owns an
// input channel, a configurable number of worker goroutines (locomotives) and a
// completion signal. Blocks are connected with LinkTo; a link may carry a
// predicate and may propagate completion (and faults) to its target.
//
// Key constructs:
// - NewTransform/NewMany: map each input to one or many outputs
// - NewSink: consume inputs without producing outputs
// - NewBroadcast: hand every input to every linked target, optionally cloned
// - Send/Complete/Fault/Wait: feed, finish, fail and await a block
// - WithWorkerOptions/WithBufferOptions: defaults carried through a context
//
// Routing of a non-broadcast source is first-match over its links in link order.
// Items no link accepts are dropped, or fault the block under FaultUnmatched.
package block
