// Package client wires the full message path together.
//
// Inbound: wire event → wrap-id dedupe → envelope unwrap → codec parse →
// thread ingest → snapshot save → update callback. The whole pipeline runs
// on the single feed goroutine, so ingestion is naturally serialized.
// Decryption failures are expected under self-CC dual publishing and are
// swallowed without logging; every other rejection is logged at debug
// level and dropped, never surfaced.
//
// Outbound: build (validated) → wrap toward the counterparty and toward
// self → optimistic local ingest → concurrent publish of both wraps.
// Publish failures are reported to the caller but never retract the
// optimistic update; the inbound feed reconciles any divergence.
//
// The client owns the thread collection as a single value, replaced
// wholesale on every ingestion. Stopping the feed stops future ingestion
// only; already-ingested state stays.
package client
