// Package services exposes the auction state machine over HTTP and keeps
// its records durable across restarts.
//
// AuctionService wires the state machine, the settlement engine, and a
// record store together: every successful transition is persisted before
// the operation returns, and LoadAll rebuilds in-memory state on startup.
// HTTPAuctionService puts a chi route tree in front of it, translating
// domain errors to HTTP status codes and streaming state-transition events
// over server-sent events.
//
// Two store implementations are provided: PostgresStore for deployments
// and InMemoryStore for tests and the demo binary.
package services
