// ABOUTME: NIP-89 handler discovery - which merchants accept reservations
// ABOUTME: Kind 31989 queries with d=32101, TTL-cached per pubkey

package relay

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/message"
)

// KindHandlerRecommendation is the NIP-89 recommendation event kind.
const KindHandlerRecommendation = 31989

// cacheEntry is one cached discovery result.
type cacheEntry struct {
	supported bool
	expiresAt time.Time
}

// Discovery answers "does this merchant handle reservation requests?" by
// querying handler-recommendation events, with per-pubkey result caching.
type Discovery struct {
	pool   *Pool
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewDiscovery creates a discovery service over the pool with the given
// cache TTL.
func NewDiscovery(pool *Pool, ttl time.Duration, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		pool:   pool,
		ttl:    ttl,
		logger: logger.With("component", "discovery"),
		cache:  make(map[string]cacheEntry),
	}
}

// SupportsReservations reports, per pubkey, whether a reservation handler
// recommendation was found. A nil value means the query failed and the
// answer is unknown.
func (d *Discovery) SupportsReservations(ctx context.Context, pubkeys []string) map[string]*bool {
	results := make(map[string]*bool, len(pubkeys))

	var uncached []string
	now := time.Now()
	d.mu.Lock()
	for _, pk := range pubkeys {
		if e, ok := d.cache[pk]; ok && e.expiresAt.After(now) {
			v := e.supported
			results[pk] = &v
			continue
		}
		uncached = append(uncached, pk)
	}
	d.mu.Unlock()

	if len(uncached) == 0 {
		return results
	}

	found, err := d.query(ctx, uncached)
	if err != nil {
		d.logger.Warn("handler discovery query failed", "error", err)
		for _, pk := range uncached {
			results[pk] = nil
		}
		return results
	}

	expires := now.Add(d.ttl)
	d.mu.Lock()
	for _, pk := range uncached {
		supported := found[pk]
		d.cache[pk] = cacheEntry{supported: supported, expiresAt: expires}
		v := supported
		results[pk] = &v
	}
	d.mu.Unlock()

	return results
}

// query asks every connected relay for recommendation events authored by
// the given pubkeys and unions the answers.
func (d *Discovery) query(ctx context.Context, pubkeys []string) (map[string]bool, error) {
	relays := d.pool.connected()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	filter := nostr.Filter{
		Kinds:   []int{KindHandlerRecommendation},
		Authors: pubkeys,
		Tags:    nostr.TagMap{"d": []string{strconv.Itoa(message.KindRequest)}},
	}

	found := make(map[string]bool, len(pubkeys))
	queried := false
	for _, r := range relays {
		evs, err := r.QuerySync(ctx, filter)
		if err != nil {
			d.logger.Debug("discovery query failed on relay", "url", r.URL, "error", err)
			continue
		}
		queried = true
		for _, ev := range evs {
			found[ev.PubKey] = true
		}
	}
	if !queried {
		return nil, ErrNoRelays
	}
	return found, nil
}

// ClearCache discards all cached discovery results.
func (d *Discovery) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]cacheEntry)
}
