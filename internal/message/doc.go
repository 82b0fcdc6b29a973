// Package message defines the typed reservation event schema.
//
// # Kinds
//
// Four event kinds cover the negotiation, numbered from the reservation
// handler namespace:
//
//	32101  Request               (thread root)
//	32102  Response              (confirm / decline / expire / cancel)
//	32103  ModificationRequest   (propose a new time)
//	32104  ModificationResponse  (accept or decline a proposal)
//
// Each kind has its own payload variant; Payload is a closed union and
// dispatch over it is exhaustive.
//
// # Builders
//
// Builders validate the payload first, collecting every violation as a
// ValidationErrors list rather than just the first, and only then produce the
// plain-JSON content and tag set as an envelope.Draft. Encryption is the
// envelope layer's job; builders never touch key material.
//
// # Parsers
//
// Parse turns an unwrapped rumor back into a Message. It rejects unknown
// kinds, checks id/pubkey hex, requires a p tag, requires a root-marked
// e tag on every non-root kind, and payload-validates the content. Inbound
// data is untrusted; a parse failure classifies the event for dropping,
// it never panics.
package message
