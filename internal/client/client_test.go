// ABOUTME: Tests for the concierge client pipeline
// ABOUTME: Covers inbound wrap handling, optimistic sends, and snapshot restore

package client

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
	"github.com/Synvya/ai-concierge-sub000/internal/identity"
	"github.com/Synvya/ai-concierge-sub000/internal/message"
	"github.com/Synvya/ai-concierge-sub000/internal/relay"
	"github.com/Synvya/ai-concierge-sub000/internal/store"
	"github.com/Synvya/ai-concierge-sub000/internal/thread"
)

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.Identity == nil {
		kp, err := identity.Generate()
		require.NoError(t, err)
		opts.Identity = kp
	}
	if opts.Pool == nil {
		opts.Pool = relay.NewPool(nil, nil)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

// inboundWrap builds a gift wrap from a counterparty addressed to the client.
func inboundWrap(t *testing.T, c *Client, senderPriv string, draft envelope.Draft) *nostr.Event {
	t.Helper()
	wrap, err := envelope.WrapEvent(draft, senderPriv, c.keypair.PublicKey)
	require.NoError(t, err)
	return wrap
}

func requestDraft(t *testing.T, recipientPub string) envelope.Draft {
	t.Helper()
	d, err := message.BuildRequest(message.Request{
		PartySize:      2,
		ISOTime:        "2026-09-15T19:30:00Z",
		RestaurantName: "Chez Test",
	}, recipientPub)
	require.NoError(t, err)
	return d
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Pool: relay.NewPool(nil, nil)})
	assert.Error(t, err)

	kp, err := identity.Generate()
	require.NoError(t, err)
	_, err = New(Options{Identity: kp})
	assert.Error(t, err)
}

func TestStart_NoFeedIsImmediatelyReady(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	select {
	case <-c.Ready():
	default:
		t.Fatal("client with the feed disabled must be ready after Start")
	}
	assert.Empty(t, c.Threads())
}

func TestHandleWireEvent_IngestsInboundRequest(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	senderPriv := nostr.GeneratePrivateKey()
	wrap := inboundWrap(t, c, senderPriv, requestDraft(t, c.keypair.PublicKey))

	c.handleWireEvent(wrap)

	threads := c.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, thread.StatusSent, threads[0].Status)
	assert.Equal(t, "Chez Test", threads[0].RestaurantName)
}

func TestHandleWireEvent_DuplicateWrapSkipped(t *testing.T) {
	updates := 0
	c := newTestClient(t, Options{OnUpdate: func([]*thread.Thread) { updates++ }})
	require.NoError(t, c.Start(context.Background()))

	senderPriv := nostr.GeneratePrivateKey()
	wrap := inboundWrap(t, c, senderPriv, requestDraft(t, c.keypair.PublicKey))

	c.handleWireEvent(wrap)
	c.handleWireEvent(wrap)

	assert.Len(t, c.Threads(), 1)
	assert.Equal(t, 1, updates)
}

// A wrap addressed to someone else fails decryption quietly; the feed is
// half such wraps under self-CC.
func TestHandleWireEvent_ForeignWrapIgnored(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	senderPriv := nostr.GeneratePrivateKey()
	otherPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	wrap, err := envelope.WrapEvent(requestDraft(t, otherPub), senderPriv, otherPub)
	require.NoError(t, err)

	c.handleWireEvent(wrap)
	assert.Empty(t, c.Threads())
}

func TestHandleWireEvent_NonReservationRumorDropped(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	senderPriv := nostr.GeneratePrivateKey()
	wrap := inboundWrap(t, c, senderPriv, envelope.Draft{Kind: 1, Content: "hello"})

	c.handleWireEvent(wrap)
	assert.Empty(t, c.Threads())
}

// With no relays reachable the send still applies locally and the caller
// gets the rumor id back alongside the error.
func TestSendRequest_OptimisticWithoutRelays(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	merchantPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	id, err := c.SendRequest(context.Background(), merchantPub, message.Request{
		PartySize: 2,
		ISOTime:   "2026-09-15T19:30:00Z",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, relay.ErrNoRelays)
	require.NotEmpty(t, id)

	threads := c.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, thread.StatusSent, threads[0].Status)
	assert.Equal(t, merchantPub, threads[0].Counterparty)
}

func TestSendRequest_InvalidPayload(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	merchantPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	_, err = c.SendRequest(context.Background(), merchantPub, message.Request{PartySize: 0})
	var verrs message.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
	assert.Empty(t, c.Threads(), "nothing is ingested for an invalid payload")
}

func TestSendModificationRequest_ThreadsBackToRoot(t *testing.T) {
	c := newTestClient(t, Options{})
	require.NoError(t, c.Start(context.Background()))

	merchantPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	rootID, err := c.SendRequest(context.Background(), merchantPub, message.Request{
		PartySize: 2,
		ISOTime:   "2026-09-15T19:30:00Z",
	})
	require.Error(t, err) // no relays; local state applied anyway

	_, err = c.SendModificationRequest(context.Background(), merchantPub, rootID, message.ModificationRequest{
		ISOTime: "2026-09-16T20:00:00Z",
		Message: "a day later?",
	})
	require.Error(t, err) // still no relays

	threads := c.Threads()
	require.Len(t, threads, 1, "the proposal joins the existing thread")
	th := threads[0]
	assert.Equal(t, thread.StatusModificationRequested, th.Status)
	require.NotNil(t, th.Pending)
	assert.Equal(t, "2026-09-16T20:00:00Z", th.Pending.ISOTime)
	assert.Len(t, th.Messages, 2)
}

func TestStartStop_SnapshotRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "threads.db")
	s, err := store.NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	kp, err := identity.Generate()
	require.NoError(t, err)

	merchantPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	first := newTestClient(t, Options{Identity: kp, Store: s})
	require.NoError(t, first.Start(context.Background()))
	id, _ := first.SendRequest(context.Background(), merchantPub, message.Request{
		PartySize: 3,
		ISOTime:   "2026-09-15T19:30:00Z",
	})
	require.NotEmpty(t, id)

	// A second client over the same store picks the thread back up.
	second := newTestClient(t, Options{Identity: kp, Store: s})
	require.NoError(t, second.Start(context.Background()))

	threads := second.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, id, threads[0].ID)
	assert.Equal(t, 3, threads[0].PartySize)
}

func TestStart_NormalizesLegacySnapshotStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "threads.db")
	s, err := store.NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	legacy := &thread.Thread{
		ID:     "1111111111111111111111111111111111111111111111111111111111111111",
		Status: "pending",
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), []*thread.Thread{legacy}))

	c := newTestClient(t, Options{Store: s})
	require.NoError(t, c.Start(context.Background()))

	threads := c.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, thread.StatusSent, threads[0].Status)
}
