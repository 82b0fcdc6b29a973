// ABOUTME: Concierge client - inbound pipeline, thread state, snapshot I/O
// ABOUTME: Single value thread collection, serialized ingestion, optimistic sends

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/convcrypt"
	"github.com/Synvya/ai-concierge-sub000/internal/dedupe"
	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
	"github.com/Synvya/ai-concierge-sub000/internal/identity"
	"github.com/Synvya/ai-concierge-sub000/internal/message"
	"github.com/Synvya/ai-concierge-sub000/internal/relay"
	"github.com/Synvya/ai-concierge-sub000/internal/thread"
)

const (
	dedupeTTL     = 30 * time.Minute
	dedupeMaxSize = 10000
	saveTimeout   = 5 * time.Second
)

// SnapshotStore is what the client needs from persistence.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, threads []*thread.Thread) error
	LoadSnapshot(ctx context.Context) ([]*thread.Thread, error)
}

// Options configures a Client.
type Options struct {
	Identity identity.Provider
	Pool     *relay.Pool
	Store    SnapshotStore // optional; nil disables persistence

	// LiveFeed controls whether Start opens the inbound subscription.
	// Injected from config, never inferred from the environment.
	LiveFeed bool

	// BacklogWindow bounds the since filter on the subscription; zero
	// requests full history.
	BacklogWindow time.Duration

	// OnUpdate, when set, is invoked after every accepted ingestion with
	// the current flat thread list.
	OnUpdate func([]*thread.Thread)

	Logger *slog.Logger
}

// Client is the reservation messaging client.
type Client struct {
	keypair *identity.Keypair
	pool    *relay.Pool
	store   SnapshotStore
	engine  *thread.Engine
	seen    *dedupe.Cache
	logger  *slog.Logger

	liveFeed      bool
	backlogWindow time.Duration
	onUpdate      func([]*thread.Thread)

	mu      sync.Mutex
	threads thread.Collection
	feed    *relay.Feed

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a client. The identity provider must already be loaded.
func New(opts Options) (*Client, error) {
	if opts.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("relay pool is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	return &Client{
		keypair:       opts.Identity.Keypair(),
		pool:          opts.Pool,
		store:         opts.Store,
		engine:        thread.NewEngine(logger),
		seen:          dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:        logger,
		liveFeed:      opts.LiveFeed,
		backlogWindow: opts.BacklogWindow,
		onUpdate:      opts.OnUpdate,
		threads:       thread.NewCollection(),
		ready:         make(chan struct{}),
	}, nil
}

// Start restores the persisted snapshot and, when the live feed is
// enabled, connects to the relays and opens the inbound subscription.
// With the feed disabled the client is immediately ready.
func (c *Client) Start(ctx context.Context) error {
	if c.store != nil {
		list, err := c.store.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}
		c.mu.Lock()
		c.threads = thread.Restore(list)
		c.mu.Unlock()
		c.logger.Info("snapshot restored", "threads", len(list))
	}

	if !c.liveFeed {
		c.markReady()
		return nil
	}

	if err := c.pool.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to relays: %w", err)
	}

	var since *nostr.Timestamp
	if c.backlogWindow > 0 {
		ts := nostr.Timestamp(time.Now().Add(-c.backlogWindow).Unix())
		since = &ts
	}

	feed, err := c.pool.Subscribe(ctx, c.keypair.PublicKey, since, c.handleWireEvent, c.markReady)
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	c.feed = feed
	c.logger.Info("live feed started", "pubkey", c.keypair.PublicKey)
	return nil
}

// Stop halts the inbound feed. Thread state already ingested is kept.
func (c *Client) Stop() {
	if c.feed != nil {
		c.feed.Stop()
		c.feed = nil
	}
	c.seen.Close()
}

// Ready is closed once the historical backlog is complete (or immediately
// when the live feed is disabled).
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Threads returns the current flat thread list, most recent first.
func (c *Client) Threads() []*thread.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threads.List()
}

// markReady closes the ready channel exactly once.
func (c *Client) markReady() {
	c.readyOnce.Do(func() {
		close(c.ready)
		c.logger.Info("backlog complete, subscription ready")
	})
}

// handleWireEvent is the inbound pipeline. It runs on the single feed
// goroutine and must never panic or propagate an error: relay input is
// untrusted and one bad event cannot stall the feed.
func (c *Client) handleWireEvent(ev *nostr.Event) {
	if c.seen.Seen(ev.ID) {
		return
	}

	rumor, err := envelope.UnwrapEvent(ev, c.keypair.PrivateKey)
	if err != nil {
		// Self-CC makes failed decryption the routine case: roughly half
		// the feed is addressed to the other party. Stay silent.
		if errors.Is(err, convcrypt.ErrDecryption) {
			return
		}
		c.logger.Debug("dropping wrap", "event_id", ev.ID, "error", err)
		return
	}

	msg, err := message.Parse(rumor)
	if err != nil {
		c.logger.Debug("dropping unparsable rumor", "rumor_id", rumor.ID, "error", err)
		return
	}

	c.ingest(msg)
}

// ingest merges one parsed message, persists the snapshot, and notifies.
func (c *Client) ingest(msg *message.Message) {
	c.mu.Lock()
	before := c.threads
	after := c.engine.Ingest(before, msg)
	c.threads = after
	c.mu.Unlock()

	// Replay-safe: a rejected or already-seen message returns the input
	// collection unchanged, so nothing is persisted or announced.
	if sameCollection(before, after) {
		return
	}

	c.persist(after)
	if c.onUpdate != nil {
		c.onUpdate(after.List())
	}
}

// sameCollection reports whether the engine returned the input unchanged.
// The engine clones on every accepted merge, so pointer comparison per
// thread is sufficient.
func sameCollection(a, b thread.Collection) bool {
	if len(a) != len(b) {
		return false
	}
	for id, t := range a {
		if b[id] != t {
			return false
		}
	}
	return true
}

// persist saves the snapshot with its own timeout so a canceled request
// context cannot lose state.
func (c *Client) persist(threads thread.Collection) {
	if c.store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := c.store.SaveSnapshot(saveCtx, threads.List()); err != nil {
		c.logger.Error("failed to save snapshot", "error", err)
	}
}
