// Package idgen generates the identifiers muteguard puts on sessions and
// pages so log lines from one Meet tab can be grouped.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings (time-sortable).
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

var (
	// Session IDs change on every page load; page IDs live as long as the tab.
	Session = Prefixed("ses_", Default)
	Page    = Prefixed("pg_", Default)
)
