// Package aggregates contains infrastructure implementations of domain aggregate contracts.
//
// Implementations in this package read and write the temporal graph through
// internal/domain/graph ports and own the store transaction of every
// invariant-critical write.
package aggregates
