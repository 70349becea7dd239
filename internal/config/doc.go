// Package config loads and validates the gateway configuration.
//
// The realm allow-list table and backing-service list are declarative data
// in the config file, not code. Malformed realm or service data is a fatal
// bootstrap error: the process must fail fast before any dispatch traffic is
// accepted. Environment variables in ${VAR} form are expanded before parsing.
package config
