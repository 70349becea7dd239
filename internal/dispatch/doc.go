// Package dispatch exposes a flat, namespaced, callable tool surface over a
// configured set of backing services.
//
// # Bootstrap
//
// Each backing service moves through a small state machine while the tool
// table is built:
//
//	unregistered -> discovering -> registering -> registered | registration_failed
//
// Discovery pulls the service's capability definitions from the registry;
// registration derives one namespaced tool entry per MCP tool contract,
// verifying at registration time that the service's CapabilityProvider can
// actually supply a handler for the tool. A service that fails registration
// does not abort the server: its tools are simply absent from the table and
// the failure is logged and counted. One misbehaving service must never take
// down unrelated tools.
//
// # Namespacing and conflicts
//
// Tool names are namespaced as <prefix>_<name> unless the contract already
// carries the prefix. If a namespaced name is already taken by a different
// owning service, the second registration is rejected and the original entry
// kept. Last-registered-wins is deliberately not a policy here: it produces
// silent, hard-to-audit capability shadowing.
//
// # Execution
//
// ExecuteTool authorizes the caller (realm allow-list, tenant check), looks
// the handler up through the owning service's provider on every call (so
// services re-initialized after bootstrap stay reachable), and invokes it
// with panic recovery. Whatever happens, the caller receives a uniform
// Result envelope; the dispatcher never propagates a handler failure as a
// crash. This is the one boundary where typed errors are flattened to a
// string, and the distinguishing message text is preserved.
//
// Handlers may suspend on their own I/O for as long as they like; no timeout
// is imposed here. The caller's context is passed through untouched.
package dispatch
