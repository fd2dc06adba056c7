// Package redisstore provides Redis-backed coordination primitives: the
// cross-process mentor refresh lock and the webhook replay ledger. Both are
// drop-in alternatives to the in-memory implementations for multi-instance
// deployments.
package redisstore
