// Package flow builds typed pipelines out of concurrent blocks.
//
// A pipeline starts with New and grows through package functions that take
// and return a Cursor: AddFirst, AddBlock, AddManyBlock, AddLastBlock and
// their async variants. Fork and Broadcast split the flow into branch
// pipelines. Build validates the whole branch tree, freezes it and returns
// a single-use Runner.
//
// Async stages produce *Pending values. The stage that follows an async
// stage awaits the pending value before it calls its own function, so
// stage functions always see plain values.
package flow
