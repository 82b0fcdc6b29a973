// ABOUTME: Relay connection pool and outbound gift-wrap publishing
// ABOUTME: PublishPair issues both self-CC wraps concurrently and awaits both

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// ErrNoRelays is returned when no relay connection could be established.
var ErrNoRelays = errors.New("relay: no relays connected")

// Pool holds connections to a fixed set of relays. Connections are
// established lazily on Connect and reused for subscriptions and
// publishing.
type Pool struct {
	urls   []string
	logger *slog.Logger

	mu     sync.Mutex
	relays map[string]*nostr.Relay
}

// NewPool creates a pool over the given relay URLs. No connections are
// opened until Connect.
func NewPool(urls []string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		urls:   urls,
		logger: logger.With("component", "relay"),
		relays: make(map[string]*nostr.Relay),
	}
}

// Connect dials every configured relay, keeping whatever succeeds. It
// fails only when not a single relay is reachable.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, url := range p.urls {
		if _, ok := p.relays[url]; ok {
			continue
		}
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			p.logger.Warn("relay connection failed", "url", url, "error", err)
			continue
		}
		p.relays[url] = r
		p.logger.Info("relay connected", "url", url)
	}

	if len(p.relays) == 0 {
		return ErrNoRelays
	}
	return nil
}

// connected returns a snapshot of the live connections.
func (p *Pool) connected() []*nostr.Relay {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*nostr.Relay, 0, len(p.relays))
	for _, r := range p.relays {
		out = append(out, r)
	}
	return out
}

// Publish sends one event to every connected relay. It succeeds if at
// least one relay accepted the event and otherwise reports every failure.
func (p *Pool) Publish(ctx context.Context, ev nostr.Event) error {
	relays := p.connected()
	if len(relays) == 0 {
		return ErrNoRelays
	}

	var (
		failures []error
		accepted int
	)
	for _, r := range relays {
		if err := r.Publish(ctx, ev); err != nil {
			p.logger.Warn("publish failed", "url", r.URL, "event_id", ev.ID, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", r.URL, err))
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return fmt.Errorf("publishing event %s: %w", ev.ID, errors.Join(failures...))
	}
	return nil
}

// PublishPair sends the recipient-addressed wrap and the self-addressed
// wrap concurrently and waits for both. Either failure is reported to the
// caller; the optimistic local state applied before calling is not
// retracted, since the inbound feed reconciles divergence.
func (p *Pool) PublishPair(ctx context.Context, recipient, self *nostr.Event) error {
	var (
		wg           sync.WaitGroup
		recErr, sErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		recErr = p.Publish(ctx, *recipient)
	}()
	go func() {
		defer wg.Done()
		sErr = p.Publish(ctx, *self)
	}()
	wg.Wait()

	if recErr != nil || sErr != nil {
		return errors.Join(recErr, sErr)
	}
	return nil
}

// Close tears down every connection. Safe to call with none open.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, r := range p.relays {
		if err := r.Close(); err != nil {
			p.logger.Debug("relay close failed", "url", url, "error", err)
		}
		delete(p.relays, url)
	}
}
