// ABOUTME: Parsers turning unwrapped rumors back into typed messages
// ABOUTME: Validates kind, hex formats, p tag, root e tag, and payload schema

package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
)

// markerRoot is the positional marker on the e tag linking a reply to the
// thread root: ["e", <root-id>, "", "root"].
const markerRoot = "root"

// Message is one parsed reservation event, ready for thread ingestion.
type Message struct {
	ID        string // rumor id (content hash)
	Sender    string // rumor pubkey, authenticated by the seal
	Recipient string // from the p tag
	Kind      int
	CreatedAt nostr.Timestamp
	RootID    string // from the root e tag; empty for requests
	HasETag   bool   // any e tag at all, root-marked or not
	Content   string // raw JSON payload, kept for persistence
	Payload   Payload
}

// Parse validates a rumor's structure and content and returns the typed
// message. Inbound rumors are untrusted; every violation is an error, never
// a panic.
func Parse(r *envelope.Rumor) (*Message, error) {
	var errs ValidationErrors

	switch r.Kind {
	case KindRequest, KindResponse, KindModificationRequest, KindModificationResponse:
	default:
		return nil, ValidationErrors{{Field: "kind", Message: fmt.Sprintf("unknown reservation kind %d", r.Kind)}}
	}

	if !isHex32(r.ID) {
		errs.add("id", "must be a 64-character hex event id")
	}
	if !isHex32(r.PubKey) {
		errs.add("pubkey", "must be a 64-character hex public key")
	}

	recipient := recipientTag(r.Tags)
	if recipient == "" {
		errs.add("tags", "missing p tag with a valid recipient key")
	}

	rootID := RootTag(r.Tags)
	if r.Kind != KindRequest {
		if rootID == "" {
			errs.add("tags", "missing root-marked e tag")
		}
	}

	if err := errs.orNil(); err != nil {
		return nil, err
	}

	payload, err := parsePayload(r.Kind, r.Content)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        r.ID,
		Sender:    r.PubKey,
		Recipient: recipient,
		Kind:      r.Kind,
		CreatedAt: r.CreatedAt,
		RootID:    rootID,
		HasETag:   HasETag(r.Tags),
		Content:   r.Content,
		Payload:   payload,
	}, nil
}

// ParseRequest parses a rumor that must be a reservation request.
func ParseRequest(r *envelope.Rumor) (*Message, error) {
	return parseExact(r, KindRequest)
}

// ParseResponse parses a rumor that must be a reservation response.
func ParseResponse(r *envelope.Rumor) (*Message, error) {
	return parseExact(r, KindResponse)
}

// ParseModificationRequest parses a rumor that must be a modification request.
func ParseModificationRequest(r *envelope.Rumor) (*Message, error) {
	return parseExact(r, KindModificationRequest)
}

// ParseModificationResponse parses a rumor that must be a modification response.
func ParseModificationResponse(r *envelope.Rumor) (*Message, error) {
	return parseExact(r, KindModificationResponse)
}

func parseExact(r *envelope.Rumor, kind int) (*Message, error) {
	if r.Kind != kind {
		return nil, ValidationErrors{{Field: "kind", Message: fmt.Sprintf("expected kind %d, got %d", kind, r.Kind)}}
	}
	return Parse(r)
}

// DecodePayload decodes and validates raw JSON content for one kind. Used
// by Parse and by snapshot restoration, where only kind and content
// survive persistence.
func DecodePayload(kind int, content string) (Payload, error) {
	return parsePayload(kind, content)
}

// parsePayload decodes and validates the JSON content for one kind.
func parsePayload(kind int, content string) (Payload, error) {
	decode := func(into Payload) (Payload, error) {
		if err := json.Unmarshal([]byte(content), into); err != nil {
			return nil, ValidationErrors{{Field: "content", Message: fmt.Sprintf("payload is not valid JSON: %v", err)}}
		}
		return into, nil
	}

	var (
		p   Payload
		err error
	)
	switch kind {
	case KindRequest:
		p, err = decode(&Request{})
	case KindResponse:
		p, err = decode(&Response{})
	case KindModificationRequest:
		p, err = decode(&ModificationRequest{})
	case KindModificationResponse:
		p, err = decode(&ModificationResponse{})
	default:
		return nil, ValidationErrors{{Field: "kind", Message: fmt.Sprintf("unknown reservation kind %d", kind)}}
	}
	if err != nil {
		return nil, err
	}

	p = deref(p)
	if errs := p.validate(); len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// deref normalizes the decoded pointer back to the value variant so
// type switches over Payload see one shape per kind.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *Request:
		return *v
	case *Response:
		return *v
	case *ModificationRequest:
		return *v
	case *ModificationResponse:
		return *v
	default:
		return p
	}
}

// recipientTag extracts the p tag value when it is a well-formed key.
func recipientTag(tags nostr.Tags) string {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == "p" && isHex32(t[1]) {
			return t[1]
		}
	}
	return ""
}

// RootTag extracts the thread root id from a root-marked e tag, or "".
func RootTag(tags nostr.Tags) string {
	for _, t := range tags {
		if len(t) >= 4 && t[0] == "e" && t[3] == markerRoot && isHex32(t[1]) {
			return t[1]
		}
	}
	return ""
}

// HasETag reports whether any e tag is present at all, well-formed or not.
// The thread engine uses this to distinguish "cannot be threaded" from
// "threaded badly".
func HasETag(tags nostr.Tags) bool {
	for _, t := range tags {
		if len(t) >= 1 && t[0] == "e" {
			return true
		}
	}
	return false
}

// isHex32 reports whether s encodes exactly 32 bytes as hex.
func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}
