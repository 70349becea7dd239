// Package store persists the dispatch audit log.
//
// Every tool call the dispatch server executes is recorded with its caller
// identity, outcome, and duration, so operators can answer "who called what,
// when, and did it work" without correlating process logs. The log is
// append-only; the capability and realm tables themselves are rebuilt from
// discovery on every process start and are deliberately not persisted here.
package store
