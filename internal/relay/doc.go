// Package relay is the transport layer: connections to Nostr relays,
// the gift-wrap subscription feed, outbound publishing, and NIP-89
// handler discovery.
//
// # Subscription
//
// Subscribe opens a kind-1059 subscription filtered by #p = the local
// public key on every connected relay, optionally bounded by a since
// timestamp to request historical backlog. Events from all relays are
// funneled into a single goroutine that invokes the caller's onEvent
// serially, so downstream ingestion never needs locking. When every
// connected relay has signaled end-of-stored-events, onReady fires once:
// the backlog is complete and the subscription is live.
//
// Stop cancels the subscription; it only stops future delivery and never
// touches state already handed to the caller.
//
// # Publishing
//
// PublishPair sends the recipient wrap and the self wrap concurrently and
// waits for both. A failure of either is reported to the caller; nothing
// is retried or rolled back here; local optimistic state reconciles via
// the inbound feed.
//
// # Discovery
//
// Discovery queries kind 31989 handler-recommendation events with
// d = "32101" to learn which merchants accept reservation messages,
// caching results with a TTL.
package relay
