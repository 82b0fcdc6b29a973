// Package store persists the thread collection snapshot in SQLite.
//
// The collection is saved as a flat list (one row per thread, one row per
// message) and replaced wholesale on each save, mirroring the in-memory
// model where the collection is a single value. Loading returns raw
// persisted rows; thread.Restore applies legacy status-label normalization
// so old snapshots keep working.
//
// Message payloads are stored as their original JSON content and re-parsed
// through the message codec on load. A row whose payload no longer decodes
// is skipped with a warning rather than failing the whole load.
package store
