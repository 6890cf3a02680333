// Package notifylist relays key mutations into lists.
//
// Clients register a watch pattern together with a destination list:
//
//	NOTIFYLIST.SET user:* user-events
//
// From then on every set, expire or expired notification for a key that matches
// the pattern appends one record to the destination:
//
//	{"key":"user:42","op":"set"}
//
// # Patterns
//
// A pattern without '*' matches exactly one key. A pattern containing '*' is a
// prefix match: all markers are removed and the remaining literal must be a
// prefix of the key. "user:*", "*user:" and "us*er:" are therefore the same
// prefix. A pattern made only of markers matches nothing.
//
// An event is checked against the exact entry for its key, then against every
// wildcard entry. Each matching entry gets its own record, so overlapping
// patterns fan out to several lists, and a pattern that satisfies both paths
// receives two records.
//
// # Lifecycle
//
// A Module owns all state. The keyspace subscription is created lazily by the
// first NOTIFYLIST.SET and lives until Close. If subscribing fails the
// registration is still stored and the failure is returned; the next
// registration tries again.
//
// # Delivery
//
// Events are handled synchronously on the goroutine that delivers them. A push
// failure is logged and returned but never prevents the remaining matches from
// being pushed. Records are not retried or persisted.
package notifylist
