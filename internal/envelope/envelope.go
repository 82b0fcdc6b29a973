// ABOUTME: Builds and opens the Rumor/Seal/GiftWrap envelope layers
// ABOUTME: Enforces seal.pubkey == rumor.pubkey on unwrap (anti-impersonation)

package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/convcrypt"
)

// Event kinds for the two signed envelope layers.
const (
	KindSeal     = 13
	KindGiftWrap = 1059
)

// maxTimestampSkew is how far back seal and wrap timestamps are randomized
// so relays cannot correlate layers by creation time.
const maxTimestampSkew = 2 * 24 * time.Hour

var (
	// ErrSenderMismatch means a seal carried a rumor claiming a different
	// author than the seal's signer: a forged-sender attack.
	ErrSenderMismatch = errors.New("envelope: rumor pubkey does not match seal pubkey")

	// ErrBadSignature means a seal's signature did not verify.
	ErrBadSignature = errors.New("envelope: invalid seal signature")

	// ErrMalformed means an envelope layer had the wrong kind or did not
	// parse as an event.
	ErrMalformed = errors.New("envelope: malformed envelope layer")
)

// CreateRumor fills in the sender pubkey and content id for a draft. The
// private key is used only to derive the pubkey; nothing is signed.
func CreateRumor(d Draft, senderPriv string) (*Rumor, error) {
	pub, err := nostr.GetPublicKey(senderPriv)
	if err != nil {
		return nil, fmt.Errorf("deriving sender pubkey: %w", err)
	}

	createdAt := d.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Now()
	}
	tags := d.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}

	r := &Rumor{
		PubKey:    pub,
		CreatedAt: createdAt,
		Kind:      d.Kind,
		Tags:      tags,
		Content:   d.Content,
	}
	r.ID = r.computeID()
	return r, nil
}

// CreateSeal encrypts a rumor toward recipientPub and signs the result
// with the sender's real key.
func CreateSeal(rumor *Rumor, senderPriv, recipientPub string) (*nostr.Event, error) {
	key, err := convcrypt.DeriveKey(senderPriv, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}

	plaintext, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("serializing rumor: %w", err)
	}
	content, err := convcrypt.Encrypt(string(plaintext), key)
	if err != nil {
		return nil, fmt.Errorf("encrypting rumor: %w", err)
	}

	seal := nostr.Event{
		CreatedAt: randomPastTimestamp(),
		Kind:      KindSeal,
		Tags:      nostr.Tags{},
		Content:   content,
	}
	if err := seal.Sign(senderPriv); err != nil {
		return nil, fmt.Errorf("signing seal: %w", err)
	}
	return &seal, nil
}

// CreateWrap encrypts a seal toward recipientPub using a freshly generated
// ephemeral keypair, signs with that key, and discards it. The wrap's
// pubkey therefore reveals nothing about the true sender.
func CreateWrap(seal *nostr.Event, recipientPub string) (*nostr.Event, error) {
	ephemeralPriv := nostr.GeneratePrivateKey()

	key, err := convcrypt.DeriveKey(ephemeralPriv, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("deriving wrap key: %w", err)
	}

	plaintext, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("serializing seal: %w", err)
	}
	content, err := convcrypt.Encrypt(string(plaintext), key)
	if err != nil {
		return nil, fmt.Errorf("encrypting seal: %w", err)
	}

	wrap := nostr.Event{
		CreatedAt: randomPastTimestamp(),
		Kind:      KindGiftWrap,
		Tags:      nostr.Tags{{"p", recipientPub}},
		Content:   content,
	}
	if err := wrap.Sign(ephemeralPriv); err != nil {
		return nil, fmt.Errorf("signing wrap: %w", err)
	}
	return &wrap, nil
}

// WrapEvent composes rumor, seal, and wrap in one call.
func WrapEvent(d Draft, senderPriv, recipientPub string) (*nostr.Event, error) {
	rumor, err := CreateRumor(d, senderPriv)
	if err != nil {
		return nil, err
	}
	return wrapRumor(rumor, senderPriv, recipientPub)
}

// WrapPair is the self-CC publishing unit: one rumor, two gift wraps.
type WrapPair struct {
	Rumor     *Rumor
	Recipient *nostr.Event // addressed to the counterparty
	Self      *nostr.Event // addressed back to the sender
}

// WrapForBoth builds the recipient wrap and the self wrap around a single
// rumor, so both copies share one rumor id and collapse to one logical
// message on ingestion.
func WrapForBoth(d Draft, senderPriv, recipientPub string) (*WrapPair, error) {
	rumor, err := CreateRumor(d, senderPriv)
	if err != nil {
		return nil, err
	}

	toRecipient, err := wrapRumor(rumor, senderPriv, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("wrapping for recipient: %w", err)
	}
	toSelf, err := wrapRumor(rumor, senderPriv, rumor.PubKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping for self: %w", err)
	}

	return &WrapPair{Rumor: rumor, Recipient: toRecipient, Self: toSelf}, nil
}

func wrapRumor(rumor *Rumor, senderPriv, recipientPub string) (*nostr.Event, error) {
	seal, err := CreateSeal(rumor, senderPriv, recipientPub)
	if err != nil {
		return nil, err
	}
	return CreateWrap(seal, recipientPub)
}

// UnwrapEvent opens a gift wrap addressed to the holder of myPriv and
// returns the authenticated rumor inside.
//
// Failure modes: convcrypt.ErrDecryption when either layer was not
// encrypted toward myPriv (routine under self-CC), ErrBadSignature when the
// seal's signature does not verify, ErrSenderMismatch when the rumor claims
// a different author than the seal's signer, ErrMalformed otherwise.
func UnwrapEvent(wrap *nostr.Event, myPriv string) (*Rumor, error) {
	if wrap.Kind != KindGiftWrap {
		return nil, fmt.Errorf("%w: kind %d is not a gift wrap", ErrMalformed, wrap.Kind)
	}

	wrapKey, err := convcrypt.DeriveKey(myPriv, wrap.PubKey)
	if err != nil {
		return nil, fmt.Errorf("deriving wrap key: %w", err)
	}
	sealJSON, err := convcrypt.Decrypt(wrap.Content, wrapKey)
	if err != nil {
		return nil, err
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, fmt.Errorf("%w: seal does not parse", ErrMalformed)
	}
	if seal.Kind != KindSeal {
		return nil, fmt.Errorf("%w: inner kind %d is not a seal", ErrMalformed, seal.Kind)
	}
	if ok, err := seal.CheckSignature(); err != nil || !ok {
		return nil, ErrBadSignature
	}

	sealKey, err := convcrypt.DeriveKey(myPriv, seal.PubKey)
	if err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	rumorJSON, err := convcrypt.Decrypt(seal.Content, sealKey)
	if err != nil {
		return nil, err
	}

	var rumor Rumor
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return nil, fmt.Errorf("%w: rumor does not parse", ErrMalformed)
	}

	// The seal signature is the only proof of origin. A rumor claiming a
	// different author was forged.
	if rumor.PubKey != seal.PubKey {
		return nil, ErrSenderMismatch
	}
	// Content addressing: the id must match the rumor's own hash.
	if rumor.ID != rumor.computeID() {
		return nil, fmt.Errorf("%w: rumor id does not match content", ErrMalformed)
	}

	return &rumor, nil
}

// UnwrapMany opens each wrap independently, skipping failures. Under
// self-CC roughly half of a feed is expected to fail decryption; those
// failures are silently dropped here.
func UnwrapMany(wraps []*nostr.Event, myPriv string) []*Rumor {
	rumors := make([]*Rumor, 0, len(wraps))
	for _, w := range wraps {
		r, err := UnwrapEvent(w, myPriv)
		if err != nil {
			continue
		}
		rumors = append(rumors, r)
	}
	return rumors
}

// randomPastTimestamp returns now minus a random offset within
// maxTimestampSkew.
func randomPastTimestamp() nostr.Timestamp {
	offset := time.Duration(rand.Int63n(int64(maxTimestampSkew)))
	return nostr.Timestamp(time.Now().Add(-offset).Unix())
}
