// Package realm enforces which caller group may reach which capability.
//
// # Overview
//
// A realm is a named caller group (a bounded module boundary) subject to an
// explicit allow-list. The gateway answers "may realm R reach abstraction or
// API X?" from declarative mapping data and resolves cross-realm API calls
// when the answer is yes. No code path grants access outside what the
// mapping table declares; a realm absent from the table has an empty
// allow-list (deny by default).
//
// # Denial errors
//
// Every denial carries the realm, the requested name, and the realm's actual
// allow-list. Operators must be able to diagnose "why was this denied"
// without re-reading source; this is a governance requirement, not cosmetic.
//
// # Mutation discipline
//
// AddMapping and UpdateMapping are administrative and happen only during
// bootstrap or config reload, never interleaved with concurrent dispatch.
// The access metrics counters are the only state mutated during steady-state
// operation and use atomic increments.
package realm
