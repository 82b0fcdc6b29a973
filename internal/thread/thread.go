// ABOUTME: Thread aggregate and the immutable thread collection
// ABOUTME: Collections are values; ingestion returns a new one each time

package thread

import (
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/message"
)

// Proposal is a pending time modification awaiting an answer.
type Proposal struct {
	ISOTime    string
	Message    string
	MessageID  string // rumor id of the proposing message
	ProposedBy string
	ProposedAt nostr.Timestamp
}

// Thread is one reservation conversation, keyed by the rumor id of its
// root Request. It is mutated only by ingestion.
type Thread struct {
	ID string

	// Restaurant identity, carried by the root request.
	RestaurantName string
	RestaurantID   string

	// Counterparty is the other identity in the conversation, from the
	// local client's point of view.
	Counterparty string

	// Current negotiated terms.
	PartySize int
	ISOTime   string
	Notes     string

	// OriginalISOTime is the time on the root request, before any
	// modification. Kept to detect stale re-confirmations.
	OriginalISOTime string

	Status  Status
	Pending *Proposal // nil unless a modification awaits an answer

	Messages    []*message.Message // ordered by (created_at, id)
	LastUpdated nostr.Timestamp
}

// clone copies the thread shallowly except for the slices and pointers
// ingestion mutates.
func (t *Thread) clone() *Thread {
	c := *t
	c.Messages = make([]*message.Message, len(t.Messages))
	copy(c.Messages, t.Messages)
	if t.Pending != nil {
		p := *t.Pending
		c.Pending = &p
	}
	return &c
}

// sortMessages restores total (created_at, id) order after a merge.
func (t *Thread) sortMessages() {
	sort.SliceStable(t.Messages, func(i, j int) bool {
		a, b := t.Messages[i], t.Messages[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

// Collection is the full set of known threads, keyed by thread id. It is
// treated as an immutable value: Ingest returns a fresh map and clones any
// thread it changes, so a previously returned Collection never mutates
// underneath its holder.
type Collection map[string]*Thread

// NewCollection returns an empty collection.
func NewCollection() Collection {
	return Collection{}
}

// clone copies the map; thread values are shared until individually cloned.
func (c Collection) clone() Collection {
	next := make(Collection, len(c)+1)
	for id, t := range c {
		next[id] = t
	}
	return next
}

// contains reports whether any thread already holds a message with this
// rumor id. This is what collapses self-CC duplicates and relay replays.
func (c Collection) contains(msgID string) bool {
	for _, t := range c {
		for _, m := range t.Messages {
			if m.ID == msgID {
				return true
			}
		}
	}
	return false
}

// List returns the threads as a flat list, most recently updated first.
// This is the renderable and serializable view of the collection.
func (c Collection) List() []*Thread {
	out := make([]*Thread, 0, len(c))
	for _, t := range c {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated != out[j].LastUpdated {
			return out[i].LastUpdated > out[j].LastUpdated
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore rebuilds a collection from a persisted flat list, normalizing
// legacy status labels exactly once here so the transition logic never
// sees them.
func Restore(list []*Thread) Collection {
	c := make(Collection, len(list))
	for _, t := range list {
		t.Status = NormalizeStatus(string(t.Status))
		t.sortMessages()
		c[t.ID] = t
	}
	return c
}
