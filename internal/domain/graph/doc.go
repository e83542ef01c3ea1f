// Package graph defines the temporal edge contract shared by every graph store
// implementation and the algorithms that turn many recorded versions of a fact
// into the single currently-effective one.
//
// Every versioned fact is an edge carrying {branch, branch_level, from, to, status}.
// Edges are append-only: an existing edge is never rewritten, only closed by
// setting its "to" and superseded by a new edge.
package graph
