// Package payments verifies and decodes webhook deliveries from the payment
// provider. Deliveries carry a signed envelope (timestamp plus HMAC of the
// raw body) that bounds replay; event payloads map onto a small closed set
// of booking-relevant kinds, with everything else acknowledged and skipped.
package payments
