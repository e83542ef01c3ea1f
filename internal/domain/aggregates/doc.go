// Package aggregates defines domain-facing aggregate contracts.
//
// These contracts avoid persistence/transport implementation details and
// represent the semantic write boundaries (branch merge, relationship
// reconciliation, branch lifecycle) where invariants must hold atomically.
package aggregates
