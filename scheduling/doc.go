// Package scheduling is the calendar-provider client. It exchanges refresh
// tokens at the provider token endpoint, fetches day availability with a
// bearer token, and defines the wire schema and signature verifier for the
// provider's webhook deliveries. Token storage and lifecycle policy live in
// core; this package only talks HTTP.
package scheduling
