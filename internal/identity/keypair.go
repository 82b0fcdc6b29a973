// ABOUTME: Keypair type wrapping a secp256k1 private/public key pair
// ABOUTME: Provides hex and NIP-19 bech32 encodings plus validation

package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Keypair holds a client identity: a secp256k1 private key and its derived
// public key, both hex-encoded.
type Keypair struct {
	PrivateKey string
	PublicKey  string
}

// Provider supplies the local identity to components that need to sign,
// decrypt, or address messages.
type Provider interface {
	Keypair() *Keypair
}

// Generate creates a brand-new random keypair.
func Generate() (*Keypair, error) {
	sk := nostr.GeneratePrivateKey()
	return FromPrivateKey(sk)
}

// FromPrivateKey builds a Keypair from a hex-encoded private key,
// deriving the public key.
func FromPrivateKey(sk string) (*Keypair, error) {
	sk = strings.ToLower(strings.TrimSpace(sk))
	if !isHexKey(sk) {
		return nil, fmt.Errorf("private key is not 64 hex characters")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	return &Keypair{PrivateKey: sk, PublicKey: pk}, nil
}

// Npub returns the NIP-19 bech32 encoding of the public key.
func (k *Keypair) Npub() (string, error) {
	return nip19.EncodePublicKey(k.PublicKey)
}

// Nsec returns the NIP-19 bech32 encoding of the private key.
func (k *Keypair) Nsec() (string, error) {
	return nip19.EncodePrivateKey(k.PrivateKey)
}

// Keypair implements Provider so a bare *Keypair can serve as its own
// identity provider.
func (k *Keypair) Keypair() *Keypair { return k }

// DecodeNpub converts a bech32 npub string to a hex public key.
func DecodeNpub(npub string) (string, error) {
	prefix, value, err := nip19.Decode(strings.TrimSpace(npub))
	if err != nil {
		return "", fmt.Errorf("decoding npub: %w", err)
	}
	if prefix != "npub" {
		return "", fmt.Errorf("expected npub, got %q", prefix)
	}
	pk, ok := value.(string)
	if !ok || !isHexKey(pk) {
		return "", fmt.Errorf("npub did not decode to a 32-byte key")
	}
	return pk, nil
}

// isHexKey reports whether s is a 64-character hex string.
func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}
