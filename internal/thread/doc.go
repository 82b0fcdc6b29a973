// Package thread reconstructs ordered reservation conversations from
// independently-arriving messages.
//
// # Model
//
// A Thread is keyed by the rumor id of its root Request. It holds the
// negotiated party size, time, and notes, a status, an optional pending
// modification proposal, and the full ordered message list. Non-root
// messages join their thread via the root-marked e tag.
//
// # Ingestion
//
// Engine.Ingest is a pure function: it takes a Collection and a parsed
// message and returns a new Collection, never mutating its input. The
// relay feed is untrusted, so ingestion guards before it merges:
//
//  1. drop messages timestamped more than five minutes in the future
//  2. drop structurally incomplete or unknown-kind messages
//  3. drop non-root messages with no e tag at all
//  4. drop rumor ids already present anywhere in the collection,
//     which collapses self-CC duplicates and relay replays
//
// Requests seed new threads; replies merge into existing ones and are
// dropped with a warning when no thread matches. Messages within a thread
// are totally ordered by (created_at, id), so re-sorting after each merge
// makes final state independent of arrival order.
//
// Ingest never returns an error and never panics: one malformed event must
// not abort the rest of a batch. It performs no I/O; callers serialize
// concurrent feeds before handing events in.
//
// # Status
//
// sent → confirmed | declined | expired | cancelled (terminal), with the
// modification detour sent/confirmed → modification_requested →
// modification_accepted → confirmed. Older persisted snapshots used
// different labels; NormalizeStatus remaps them once at load time so
// transition logic never sees legacy values.
package thread
