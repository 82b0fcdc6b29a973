// ABOUTME: Tests for the thread ingestion state machine
// ABOUTME: Covers guards, dedupe, ordering, and full negotiation scenarios

package thread

import (
	"fmt"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Synvya/ai-concierge-sub000/internal/message"
)

const (
	guestKey    = "1111111111111111111111111111111111111111111111111111111111111111"
	merchantKey = "2222222222222222222222222222222222222222222222222222222222222222"
)

// fakeID builds a distinct 64-char hex id from a small seed.
func fakeID(n int) string {
	return fmt.Sprintf("%064x", n)
}

func testEngine() *Engine {
	e := NewEngine(nil)
	e.now = func() time.Time { return time.Unix(1_800_000_000, 0) }
	return e
}

func ts(offset int) nostr.Timestamp {
	return nostr.Timestamp(1_800_000_000 - 3600 + int64(offset))
}

func requestMsg(id int, at nostr.Timestamp) *message.Message {
	return &message.Message{
		ID:        fakeID(id),
		Sender:    guestKey,
		Recipient: merchantKey,
		Kind:      message.KindRequest,
		CreatedAt: at,
		Payload: message.Request{
			PartySize:      4,
			ISOTime:        "2026-09-15T19:30:00Z",
			RestaurantName: "Chez Test",
		},
	}
}

func responseMsg(id int, at nostr.Timestamp, rootID string, p message.Response) *message.Message {
	return &message.Message{
		ID:        fakeID(id),
		Sender:    merchantKey,
		Recipient: guestKey,
		Kind:      message.KindResponse,
		CreatedAt: at,
		RootID:    rootID,
		HasETag:   true,
		Payload:   p,
	}
}

func modRequestMsg(id int, at nostr.Timestamp, rootID string, p message.ModificationRequest) *message.Message {
	return &message.Message{
		ID:        fakeID(id),
		Sender:    guestKey,
		Recipient: merchantKey,
		Kind:      message.KindModificationRequest,
		CreatedAt: at,
		RootID:    rootID,
		HasETag:   true,
		Payload:   p,
	}
}

func modResponseMsg(id int, at nostr.Timestamp, rootID string, p message.ModificationResponse) *message.Message {
	return &message.Message{
		ID:        fakeID(id),
		Sender:    merchantKey,
		Recipient: guestKey,
		Kind:      message.KindModificationResponse,
		CreatedAt: at,
		RootID:    rootID,
		HasETag:   true,
		Payload:   p,
	}
}

func TestIngest_RequestRootsThread(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))

	require.Len(t, c, 1)
	th := c[fakeID(1)]
	require.NotNil(t, th)
	assert.Equal(t, StatusSent, th.Status)
	assert.Equal(t, "Chez Test", th.RestaurantName)
	assert.Equal(t, 4, th.PartySize)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.ISOTime)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.OriginalISOTime)
	assert.Equal(t, merchantKey, th.Counterparty)
	assert.Len(t, th.Messages, 1)
}

func TestIngest_InputCollectionUnchanged(t *testing.T) {
	e := testEngine()
	before := e.Ingest(nil, requestMsg(1, ts(0)))

	after := e.Ingest(before, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z",
	}))

	assert.Equal(t, StatusSent, before[fakeID(1)].Status, "previously returned collection must not mutate")
	assert.Equal(t, StatusConfirmed, after[fakeID(1)].Status)
	assert.Len(t, before[fakeID(1)].Messages, 1)
	assert.Len(t, after[fakeID(1)].Messages, 2)
}

func TestIngest_DuplicateRumorIsNoOp(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))

	// The self-CC copy carries the same rumor id and must collapse.
	again := e.Ingest(c, requestMsg(1, ts(0)))
	assert.Len(t, again, 1)
	assert.Len(t, again[fakeID(1)].Messages, 1)
}

func TestIngest_ReplayedBatchIsIdempotent(t *testing.T) {
	e := testEngine()
	msgs := []*message.Message{
		requestMsg(1, ts(0)),
		responseMsg(2, ts(60), fakeID(1), message.Response{Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z"}),
	}

	once := e.IngestAll(nil, msgs)
	twice := e.IngestAll(once, msgs)

	assert.Len(t, twice[fakeID(1)].Messages, 2)
	assert.Equal(t, StatusConfirmed, twice[fakeID(1)].Status)
}

func TestIngest_FutureTimestampRejected(t *testing.T) {
	e := testEngine()
	farFuture := nostr.Timestamp(e.now().Add(10 * time.Minute).Unix())
	c := e.Ingest(nil, requestMsg(1, farFuture))
	assert.Empty(t, c)

	// Within tolerated clock skew it is accepted.
	nearFuture := nostr.Timestamp(e.now().Add(2 * time.Minute).Unix())
	c = e.Ingest(nil, requestMsg(2, nearFuture))
	assert.Len(t, c, 1)
}

func TestIngest_StructuralGuard(t *testing.T) {
	e := testEngine()

	assert.Empty(t, e.Ingest(nil, nil))

	m := requestMsg(1, ts(0))
	m.Payload = nil
	assert.Empty(t, e.Ingest(nil, m))

	m = requestMsg(2, ts(0))
	m.ID = ""
	assert.Empty(t, e.Ingest(nil, m))
}

func TestIngest_OrphanReplyDropped(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, responseMsg(1, ts(0), fakeID(99), message.Response{Status: message.StatusDeclined}))
	assert.Empty(t, c)
}

func TestIngest_ReplyWithoutETagDropped(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))

	m := responseMsg(2, ts(60), "", message.Response{Status: message.StatusDeclined})
	m.HasETag = false
	c = e.Ingest(c, m)
	assert.Len(t, c[fakeID(1)].Messages, 1)
}

func TestIngest_MessagesTotallyOrdered(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))

	// Arrives late but carries an earlier timestamp than the next one.
	c = e.Ingest(c, responseMsg(3, ts(120), fakeID(1), message.Response{Status: message.StatusDeclined}))
	c = e.Ingest(c, modRequestMsg(2, ts(60), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "later?",
	}))

	msgs := c[fakeID(1)].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, fakeID(1), msgs[0].ID)
	assert.Equal(t, fakeID(2), msgs[1].ID)
	assert.Equal(t, fakeID(3), msgs[2].ID)
}

func TestIngest_EqualTimestampsOrderByID(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(5, ts(60), fakeID(1), message.Response{Status: message.StatusDeclined}))
	c = e.Ingest(c, modRequestMsg(3, ts(60), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "later?",
	}))

	msgs := c[fakeID(1)].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, fakeID(3), msgs[1].ID, "ties break on id")
	assert.Equal(t, fakeID(5), msgs[2].ID)
}

// Happy path: request, confirmation.
func TestScenario_Confirmation(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z", Table: "12",
	}))

	th := c[fakeID(1)]
	assert.Equal(t, StatusConfirmed, th.Status)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.ISOTime)
	assert.True(t, th.Status.Terminal())
}

// Request, decline.
func TestScenario_Decline(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusDeclined, Message: "fully booked",
	}))

	th := c[fakeID(1)]
	assert.Equal(t, StatusDeclined, th.Status)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.ISOTime, "declined thread keeps the requested time")
}

// Request, confirmation, modification proposal, acceptance.
func TestScenario_ModificationAccepted(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z",
	}))
	c = e.Ingest(c, modRequestMsg(3, ts(120), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "can we move to Wednesday",
	}))

	th := c[fakeID(1)]
	assert.Equal(t, StatusModificationRequested, th.Status)
	require.NotNil(t, th.Pending)
	assert.Equal(t, "2026-09-16T20:00:00Z", th.Pending.ISOTime)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.ISOTime, "negotiated time changes only on acceptance")

	when := "2026-09-16T20:00:00Z"
	c = e.Ingest(c, modResponseMsg(4, ts(180), fakeID(1), message.ModificationResponse{
		Status: message.StatusAccepted, ISOTime: &when,
	}))

	th = c[fakeID(1)]
	assert.Equal(t, StatusModificationAccepted, th.Status)
	assert.Equal(t, "2026-09-16T20:00:00Z", th.ISOTime)
	assert.Nil(t, th.Pending)
}

// A declined modification keeps the thread awaiting a new proposal and
// leaves the negotiated time untouched.
func TestScenario_ModificationDeclined(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z",
	}))
	c = e.Ingest(c, modRequestMsg(3, ts(120), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "later?",
	}))
	c = e.Ingest(c, modResponseMsg(4, ts(180), fakeID(1), message.ModificationResponse{
		Status: message.StatusDeclined, ISOTime: nil,
	}))

	th := c[fakeID(1)]
	assert.Equal(t, StatusModificationRequested, th.Status)
	assert.Nil(t, th.Pending)
	assert.Equal(t, "2026-09-15T19:30:00Z", th.ISOTime)
}

// After an accepted modification, a final confirmation that re-sends the
// original time is stale and must not regress the negotiated time.
func TestScenario_StaleReconfirmationIgnored(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, modRequestMsg(2, ts(60), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "later?",
	}))
	when := "2026-09-16T20:00:00Z"
	c = e.Ingest(c, modResponseMsg(3, ts(120), fakeID(1), message.ModificationResponse{
		Status: message.StatusAccepted, ISOTime: &when,
	}))
	c = e.Ingest(c, responseMsg(4, ts(180), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T19:30:00Z",
	}))

	th := c[fakeID(1)]
	assert.Equal(t, StatusConfirmed, th.Status)
	assert.Equal(t, "2026-09-16T20:00:00Z", th.ISOTime, "stale original time must not win")
}

// A confirmation carrying a third time the parties never discussed is
// authoritative anyway.
func TestScenario_ThirdTimeConfirmationWins(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, responseMsg(2, ts(60), fakeID(1), message.Response{
		Status: message.StatusConfirmed, ISOTime: "2026-09-15T21:00:00Z",
	}))

	assert.Equal(t, "2026-09-15T21:00:00Z", c[fakeID(1)].ISOTime)
}

func TestIngest_NewProposalReplacesPending(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, modRequestMsg(2, ts(60), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "first",
	}))
	c = e.Ingest(c, modRequestMsg(3, ts(120), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-17T18:00:00Z", Notes: "second",
	}))

	th := c[fakeID(1)]
	require.NotNil(t, th.Pending)
	assert.Equal(t, "2026-09-17T18:00:00Z", th.Pending.ISOTime)
	assert.Equal(t, "second", th.Pending.Message)
	assert.Equal(t, fakeID(3), th.Pending.MessageID)
}

func TestIngest_AcceptanceFallsBackToPendingTime(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, modRequestMsg(2, ts(60), fakeID(1), message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z", Message: "later?",
	}))

	// Acceptance without an echoed time adopts the proposal's time.
	m := modResponseMsg(3, ts(120), fakeID(1), message.ModificationResponse{
		Status: message.StatusAccepted, ISOTime: nil,
	})
	// Bypass builder validation deliberately; relay peers are not obliged
	// to run ours.
	c = e.Ingest(c, m)

	th := c[fakeID(1)]
	assert.Equal(t, StatusModificationAccepted, th.Status)
	assert.Equal(t, "2026-09-16T20:00:00Z", th.ISOTime)
}

func TestCollection_ListOrder(t *testing.T) {
	e := testEngine()
	c := e.Ingest(nil, requestMsg(1, ts(0)))
	c = e.Ingest(c, requestMsg(2, ts(300)))
	c = e.Ingest(c, requestMsg(3, ts(100)))

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, fakeID(2), list[0].ID)
	assert.Equal(t, fakeID(3), list[1].ID)
	assert.Equal(t, fakeID(1), list[2].ID)
}

func TestRestore_NormalizesLegacyLabels(t *testing.T) {
	list := []*Thread{
		{ID: fakeID(1), Status: "pending"},
		{ID: fakeID(2), Status: "modification-requested"},
		{ID: fakeID(3), Status: "accepted"},
		{ID: fakeID(4), Status: "canceled"},
		{ID: fakeID(5), Status: "confirmed"},
		{ID: fakeID(6), Status: "what-even-is-this"},
	}

	c := Restore(list)
	assert.Equal(t, StatusSent, c[fakeID(1)].Status)
	assert.Equal(t, StatusModificationRequested, c[fakeID(2)].Status)
	assert.Equal(t, StatusModificationAccepted, c[fakeID(3)].Status)
	assert.Equal(t, StatusCancelled, c[fakeID(4)].Status)
	assert.Equal(t, StatusConfirmed, c[fakeID(5)].Status)
	assert.Equal(t, StatusSent, c[fakeID(6)].Status)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusDeclined.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusSent.Terminal())
	assert.False(t, StatusModificationRequested.Terminal())
	assert.False(t, StatusModificationAccepted.Terminal())
}
