// Package envelope implements the three-layer message envelope:
// Rumor → Seal → GiftWrap.
//
// # Layers
//
// A Rumor is the real payload: an unsigned, content-addressed event whose
// id is a hash of its canonical serialization. Rumors never travel the
// network bare.
//
// A Seal (kind 13) is signed by the true sender and carries the rumor
// encrypted toward one recipient with the pair's conversation key.
//
// A GiftWrap (kind 1059) carries the seal encrypted toward the recipient,
// but is signed with a single-use ephemeral key generated inside CreateWrap
// and discarded immediately. Its pubkey is meaningless as an identity
// signal; the only authenticated sender is the seal's pubkey.
//
// # Anti-impersonation
//
// UnwrapEvent asserts that the rumor's pubkey equals the seal's pubkey.
// A mismatch means someone sealed another identity's rumor and is rejected
// with ErrSenderMismatch. The rumor id is also recomputed and checked so a
// relay cannot hand back a rumor under a forged id.
//
// # Self-CC
//
// WrapForBoth produces two gift wraps around one rumor: one addressed to
// the counterparty, one to the sender itself. Publishing both lets the
// sender rebuild its own sent history from the relay feed. A subscriber can
// decrypt only the copy addressed to it; the other fails with
// convcrypt.ErrDecryption, which callers swallow.
//
// # Metadata hygiene
//
// Seal and wrap timestamps are randomized up to two days into the past so
// relays cannot correlate the layers by creation time. The rumor's own
// created_at stays truthful; it drives conversation ordering.
package envelope
