// ABOUTME: Conversation key derivation (ECDH+HKDF) and authenticated encryption
// ABOUTME: XChaCha20-Poly1305 with random nonces, base64 blob encoding

package convcrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryption is returned when an authentication tag fails to verify.
// Under self-CC dual publishing this is the routine outcome for the copy
// addressed to the other party and must not be treated as a fault.
var ErrDecryption = errors.New("convcrypt: message authentication failed")

// hkdfInfo domain-separates reservation conversation keys from any other
// use of the same ECDH secret.
const hkdfInfo = "reservation-conversation-v1"

// ConversationKey is the symmetric key shared by two identities.
type ConversationKey [32]byte

// DeriveKey computes the conversation key between the holder of myPriv and
// the owner of theirPub (both hex). The result is identical for the
// complementary pair of arguments.
func DeriveKey(myPriv, theirPub string) (ConversationKey, error) {
	var key ConversationKey

	skBytes, err := hex.DecodeString(myPriv)
	if err != nil || len(skBytes) != 32 {
		return key, fmt.Errorf("invalid private key hex")
	}
	// Nostr public keys are 32-byte x-only; lift to a compressed point.
	// Either y parity yields the same ECDH x-coordinate, so symmetry holds.
	pkBytes, err := hex.DecodeString("02" + theirPub)
	if err != nil || len(pkBytes) != 33 {
		return key, fmt.Errorf("invalid public key hex")
	}

	sk := secp256k1.PrivKeyFromBytes(skBytes)
	pk, err := secp256k1.ParsePubKey(pkBytes)
	if err != nil {
		return key, fmt.Errorf("parsing public key: %w", err)
	}

	shared := secp256k1.GenerateSharedSecret(sk, pk)

	r := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random nonce and returns
// base64(nonce || ciphertext). Repeated calls on identical input differ.
func Encrypt(plaintext string, key ConversationKey) (string, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any authentication failure,
// including a blob simply meant for a different key, yields ErrDecryption.
func Decrypt(blob string, key ConversationKey) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryption
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrDecryption
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
