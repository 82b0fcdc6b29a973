// ABOUTME: Ingestion state machine - guards, dedupe, threading, transitions
// ABOUTME: Pure (Collection, *Message) -> Collection; malformed input never aborts

package thread

import (
	"log/slog"
	"time"

	"github.com/Synvya/ai-concierge-sub000/internal/message"
)

// maxClockSkew is how far into the future a message timestamp may sit
// before it is rejected outright.
const maxClockSkew = 5 * time.Minute

// Engine ingests parsed messages into a thread collection. It holds no
// conversation state itself; everything lives in the Collection passed
// through Ingest.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an engine. logger may be nil.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger.With("component", "thread"),
		now:    time.Now,
	}
}

// Ingest merges one message into the collection and returns the updated
// collection. Rejected messages leave the input unchanged (and are
// returned as-is); Ingest never returns an error because relay data is
// untrusted and one bad event must not abort a batch. Re-ingesting an
// already-seen rumor is a no-op, which makes ingestion replay-safe.
func (e *Engine) Ingest(c Collection, m *message.Message) Collection {
	if c == nil {
		c = NewCollection()
	}

	// Future-timestamp guard: tolerate clock skew, reject beyond it.
	if m != nil && m.CreatedAt.Time().After(e.now().Add(maxClockSkew)) {
		e.logger.Debug("dropping message from the future",
			"id", m.ID, "created_at", m.CreatedAt)
		return c
	}

	// Structural guard.
	if !structurallySound(m) {
		e.logger.Debug("dropping structurally incomplete message")
		return c
	}

	// Threading guard: a reply with no e tag at all cannot join anything.
	if m.Kind != message.KindRequest && !m.HasETag {
		e.logger.Debug("dropping unthreadable reply", "id", m.ID, "kind", m.Kind)
		return c
	}

	// Dedupe by rumor id across the whole collection.
	if c.contains(m.ID) {
		return c
	}

	threadID := e.resolveThreadID(m)

	existing, ok := c[threadID]
	if !ok {
		if m.Kind != message.KindRequest {
			// A reply for a thread we have never seen. A well-behaved
			// counterparty never produces this.
			e.logger.Warn("dropping orphan reply with no matching thread",
				"id", m.ID, "kind", m.Kind, "thread_id", threadID)
			return c
		}
		next := c.clone()
		next[threadID] = newThread(threadID, m)
		return next
	}

	t := existing.clone()
	t.Messages = append(t.Messages, m)
	t.sortMessages()
	if m.CreatedAt > t.LastUpdated {
		t.LastUpdated = m.CreatedAt
	}
	e.apply(t, m)

	next := c.clone()
	next[threadID] = t
	return next
}

// IngestAll folds a batch through Ingest in order.
func (e *Engine) IngestAll(c Collection, msgs []*message.Message) Collection {
	for _, m := range msgs {
		c = e.Ingest(c, m)
	}
	return c
}

// structurallySound checks the fields every message must carry.
func structurallySound(m *message.Message) bool {
	if m == nil || m.Payload == nil || m.ID == "" || m.CreatedAt == 0 {
		return false
	}
	switch m.Kind {
	case message.KindRequest, message.KindResponse,
		message.KindModificationRequest, message.KindModificationResponse:
		return true
	}
	return false
}

// resolveThreadID picks the thread a message belongs to. Requests root
// their own thread; replies follow the root e tag. A reply whose root tag
// survived parsing empty falls back to its own id, yielding an orphan
// thread rather than a crash.
func (e *Engine) resolveThreadID(m *message.Message) string {
	if m.Kind == message.KindRequest {
		return m.ID
	}
	if m.RootID != "" {
		return m.RootID
	}
	e.logger.Warn("reply has e tag but no root marker, using own id",
		"id", m.ID, "kind", m.Kind)
	return m.ID
}

// newThread seeds a thread from its root request.
func newThread(id string, m *message.Message) *Thread {
	t := &Thread{
		ID:           id,
		Counterparty: m.Recipient,
		Status:       StatusSent,
		Messages:     []*message.Message{m},
		LastUpdated:  m.CreatedAt,
	}
	if req, ok := m.Payload.(message.Request); ok {
		t.RestaurantName = req.RestaurantName
		t.RestaurantID = req.RestaurantID
		t.PartySize = req.PartySize
		t.ISOTime = req.ISOTime
		t.OriginalISOTime = req.ISOTime
		t.Notes = req.Notes
	}
	return t
}

// apply runs the transition rules for one merged message. The switch over
// payload variants is exhaustive; Request is listed even though a request
// merging into an existing thread carries no transition.
func (e *Engine) apply(t *Thread, m *message.Message) {
	switch p := m.Payload.(type) {
	case message.Request:
		// Only the root request shapes the thread, and that happens at
		// creation. A second request with a different id landing in the
		// same thread is relay noise.

	case message.Response:
		e.applyResponse(t, p)

	case message.ModificationRequest:
		t.Status = StatusModificationRequested
		note := p.Message
		if note == "" {
			note = p.Notes
		}
		// A newer proposal overwrites any prior pending one.
		t.Pending = &Proposal{
			ISOTime:    p.ISOTime,
			Message:    note,
			MessageID:  m.ID,
			ProposedBy: m.Sender,
			ProposedAt: m.CreatedAt,
		}

	case message.ModificationResponse:
		e.applyModificationResponse(t, p, m)
	}
}

// applyResponse sets the terminal status and resolves the authoritative
// time.
func (e *Engine) applyResponse(t *Thread, p message.Response) {
	t.Status = NormalizeStatus(p.Status)

	if p.Status != message.StatusConfirmed || p.ISOTime == "" {
		return
	}

	// A confirmation that re-sends the original request time after a
	// modification already moved the thread elsewhere is stale; keep the
	// accepted modified time instead of regressing.
	if p.ISOTime == t.OriginalISOTime && t.ISOTime != t.OriginalISOTime {
		e.logger.Debug("ignoring stale re-confirmation of original time",
			"thread_id", t.ID, "kept", t.ISOTime, "stale", p.ISOTime)
		return
	}

	// A third time, neither the original nor the currently negotiated one:
	// the final response is authoritative, but flag it.
	if p.ISOTime != t.ISOTime && p.ISOTime != t.OriginalISOTime {
		e.logger.Warn("confirmation carries a time never negotiated",
			"thread_id", t.ID, "negotiated", t.ISOTime, "confirmed", p.ISOTime)
	}

	t.ISOTime = p.ISOTime
}

// applyModificationResponse settles or rejects the pending proposal.
func (e *Engine) applyModificationResponse(t *Thread, p message.ModificationResponse, m *message.Message) {
	if !p.Accepted() {
		// Declined: drop the proposal, stay in modification_requested
		// awaiting a new one.
		t.Pending = nil
		t.Status = StatusModificationRequested
		return
	}

	newTime := ""
	if p.ISOTime != nil {
		newTime = *p.ISOTime
	}
	if newTime == "" && t.Pending != nil {
		newTime = t.Pending.ISOTime
	}
	if t.Pending == nil {
		e.logger.Warn("modification accepted with no pending proposal",
			"thread_id", t.ID, "message_id", m.ID)
	}
	if newTime != "" {
		t.ISOTime = newTime
	}
	t.Status = StatusModificationAccepted
	t.Pending = nil
}
