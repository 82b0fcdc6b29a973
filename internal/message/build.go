// ABOUTME: Builders turning validated payloads into envelope drafts
// ABOUTME: Plain JSON content + tag set; encryption happens at the envelope layer

package message

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
)

// BuildRequest validates p and produces the draft for a thread-rooting
// reservation request addressed to recipientPub.
func BuildRequest(p Request, recipientPub string) (envelope.Draft, error) {
	return build(p, recipientPub, "")
}

// BuildResponse validates p and produces the draft for a reservation
// response. rootID references the request being answered; pass it whenever
// replying.
func BuildResponse(p Response, recipientPub, rootID string) (envelope.Draft, error) {
	return build(p, recipientPub, rootID)
}

// BuildModificationRequest validates p and produces the draft for a time
// modification proposal. rootID is mandatory: a proposal that cannot be
// threaded back to its request is meaningless.
func BuildModificationRequest(p ModificationRequest, recipientPub, rootID string) (envelope.Draft, error) {
	if rootID == "" {
		return envelope.Draft{}, ValidationErrors{{Field: "root", Message: "root event id is required"}}
	}
	return build(p, recipientPub, rootID)
}

// BuildModificationResponse validates p and produces the draft for the
// answer to a modification proposal. rootID is mandatory.
func BuildModificationResponse(p ModificationResponse, recipientPub, rootID string) (envelope.Draft, error) {
	if rootID == "" {
		return envelope.Draft{}, ValidationErrors{{Field: "root", Message: "root event id is required"}}
	}
	return build(p, recipientPub, rootID)
}

// build is the shared tail: validate, marshal, tag.
func build(p Payload, recipientPub, rootID string) (envelope.Draft, error) {
	var errs ValidationErrors
	if !isHex32(recipientPub) {
		errs.add("recipient", "must be a 64-character hex public key")
	}
	if rootID != "" && !isHex32(rootID) {
		errs.add("root", "must be a 64-character hex event id")
	}
	errs = append(errs, p.validate()...)
	if err := errs.orNil(); err != nil {
		return envelope.Draft{}, err
	}

	content, err := json.Marshal(p)
	if err != nil {
		return envelope.Draft{}, fmt.Errorf("encoding payload: %w", err)
	}

	tags := nostr.Tags{{"p", recipientPub}}
	if rootID != "" {
		tags = append(tags, nostr.Tag{"e", rootID, "", markerRoot})
	}

	return envelope.Draft{
		Kind:    p.Kind(),
		Content: string(content),
		Tags:    tags,
	}, nil
}
