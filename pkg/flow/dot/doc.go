// Package dot renders flow pipeline graphs in the Graphviz DOT language.
//
// Every pipeline becomes a cluster holding one box per stage. Edges between
// stages carry the type of the values flowing over them; edges into
// broadcast branches are red, edges into fork branches blue, and default
// branches are dashed.
package dot
