// Package registry provides the process-wide capability catalog.
//
// # Overview
//
// Every backing service declares what it can do by registering one
// CapabilityDefinition per capability. A definition carries zero or more
// contracts describing how the capability is invoked:
//
//   - SOAAPIContract: a direct remote-callable API (service.method)
//   - MCPToolContract: a tool usable by the dispatch server
//
// A capability may carry one, both, or neither contract kind. Absent kinds
// are a valid, queryable state, not an error.
//
// # Conflict semantics
//
// Registering the same (service, capability) pair twice with identical
// contract content is an idempotent no-op that bumps the entry's version.
// Registering it with different content fails with ErrCapabilityConflict;
// the Replace method performs the wholesale replacement instead (contracts
// are never merged field-by-field).
//
// # Lifecycle
//
// All registration happens during a serialized bootstrap phase. Once the
// dispatch server starts serving, the catalog is read-only. The registry is
// internally locked regardless, so this discipline is a convention rather
// than a safety requirement.
//
// The registry knows nothing about realms or authorization. It is pure
// storage with conflict detection; access control lives in internal/realm.
package registry
