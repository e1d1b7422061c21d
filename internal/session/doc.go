// Package session provides the durable session-state service for scribe.
// It defines the Service (debounced saves, TTL expiry, observer fan-out,
// export/import) and the State domain model persisted through a kv.Store.
package session
