// Package inbound dispatches webhook deliveries to per-surface handlers.
//
// Every delivery runs verify -> idempotency claim -> handle -> settle.
// Claims use claim/complete/fail semantics so transient handler failures
// remain retryable while duplicates short-circuit to an acknowledgement.
package inbound
