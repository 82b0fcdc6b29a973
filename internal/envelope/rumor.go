// ABOUTME: Rumor type - the unsigned, content-addressed inner event
// ABOUTME: Kept distinct from signed events so the two are never confused

package envelope

import (
	"github.com/nbd-wtf/go-nostr"
)

// Rumor is an unsigned event. Its ID is a deterministic hash of the other
// fields, computed before (and independent of) any signature. A Rumor is
// never transmitted unwrapped and carries no proof of origin by itself;
// authenticity comes from the seal around it.
type Rumor struct {
	ID        string          `json:"id"`
	PubKey    string          `json:"pubkey"`
	CreatedAt nostr.Timestamp `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      nostr.Tags      `json:"tags"`
	Content   string          `json:"content"`
}

// Draft is the caller-supplied portion of a rumor. CreatedAt defaults to
// the current time when zero.
type Draft struct {
	Kind      int
	Content   string
	Tags      nostr.Tags
	CreatedAt nostr.Timestamp
}

// computeID hashes the rumor's canonical serialization. Delegated to the
// nostr event serialization so ids match the wire format exactly.
func (r *Rumor) computeID() string {
	ev := nostr.Event{
		PubKey:    r.PubKey,
		CreatedAt: r.CreatedAt,
		Kind:      r.Kind,
		Tags:      r.Tags,
		Content:   r.Content,
	}
	return ev.GetID()
}
