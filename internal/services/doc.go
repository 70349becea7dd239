// ABOUTME: Package doc for the built-in backing services.
// ABOUTME: In-process services the dispatcher and access gateway serve.

// Package services contains the built-in backing services: in-process
// implementations that declare their capabilities to the registry, supply
// tool handlers to the dispatch server, and expose SOA API methods to the
// access gateway.
//
// Each service implements the Service interface. The Directory aggregates
// them and adapts the set to the interfaces the other packages consume: it
// is the gateway's ServiceDirectory and AbstractionProvider, and it derives
// the dispatcher's backing-service list.
//
// The built-ins keep their state in memory. They exist so a fresh install
// has working tools end to end; production deployments replace or extend
// them with services backed by real infrastructure.
package services
