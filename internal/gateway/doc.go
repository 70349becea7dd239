// ABOUTME: Package doc for the gateway orchestrator.
// ABOUTME: Wires config, registry, access gateway, store, dispatch, and HTTP.

// Package gateway assembles the running server from configuration: it
// builds the capability registry, the built-in backing services, the
// realm access gateway, the audit store, and the dispatch server, then
// serves the JSON-RPC endpoint over HTTP until the context is canceled.
//
// Construction is fail-fast: malformed realm mappings, duplicate
// services, or an unopenable database abort startup. Partial failures
// during dispatch bootstrap do not: a backing service that fails
// registration is reported degraded while the rest keep serving.
package gateway
