// Package identity manages the client's long-lived secp256k1 keypair.
//
// A keypair is generated once, persisted to disk, and reused for every
// session. The private key signs seals and derives conversation keys; the
// public key is what counterparties address gift wraps to.
//
// Keys are exposed in two encodings:
//
//   - hex: the raw 32-byte keys, used on the wire and in tags
//   - bech32 (NIP-19): npub/nsec strings for display and manual exchange
//
// The file store never regenerates an existing key. Call Clear explicitly
// to discard an identity.
package identity
