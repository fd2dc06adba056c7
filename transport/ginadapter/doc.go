// Package ginadapter mounts the webhook surfaces on a gin router. It reads
// raw bodies, flattens headers, and defers everything else to the inbound
// dispatcher so the HTTP layer never touches payload contents.
package ginadapter
