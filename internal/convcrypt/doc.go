// Package convcrypt derives and uses conversation keys.
//
// A conversation key is a 32-byte symmetric key shared by exactly two
// identities, computed as ECDH over secp256k1 followed by HKDF-SHA256.
// Derivation is symmetric: DeriveKey(aPriv, bPub) equals
// DeriveKey(bPriv, aPub).
//
// Encryption is XChaCha20-Poly1305 with a fresh random nonce per call, so
// two encryptions of the same plaintext never produce the same blob.
// Decrypt returns ErrDecryption whenever the authentication tag fails to
// verify: wrong key, corrupted bytes, or a blob that was never addressed
// to this key. Callers decide which of those cases is an error; under the
// self-CC publishing pattern a failed decrypt is routine.
package convcrypt
