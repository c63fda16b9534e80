// Package redis consumes publish commands from a Redis Pub/Sub channel so the
// REST backend can push live events after its own writes. The client is
// guarded by a circuit breaker hook and the subscription reconnects with
// backoff until shutdown.
package redis
