// Package registry implements the connection registry and broadcaster using the actor pattern.
//
// One goroutine owns the per-user and per-connection indices and processes commands from a
// buffered channel (no mutexes). Per-connection writer goroutines own the socket writes, so
// publishing never waits on the network: delivery is best-effort and at-most-once.
package registry
