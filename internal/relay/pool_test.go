// ABOUTME: Tests for the relay pool and handler discovery
// ABOUTME: Covers no-relay failure modes and discovery result caching

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_AllUnreachable(t *testing.T) {
	p := NewPool([]string{"ws://127.0.0.1:1"}, nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Connect(ctx)
	assert.ErrorIs(t, err, ErrNoRelays)
}

func TestPublish_NoRelays(t *testing.T) {
	p := NewPool(nil, nil)
	defer p.Close()

	err := p.Publish(context.Background(), nostr.Event{})
	assert.ErrorIs(t, err, ErrNoRelays)
}

func TestPublishPair_NoRelays(t *testing.T) {
	p := NewPool(nil, nil)
	defer p.Close()

	err := p.PublishPair(context.Background(), &nostr.Event{}, &nostr.Event{})
	assert.ErrorIs(t, err, ErrNoRelays)
}

func TestDiscovery_UnknownWithoutRelays(t *testing.T) {
	p := NewPool(nil, nil)
	defer p.Close()
	d := NewDiscovery(p, time.Minute, nil)

	pk := "1111111111111111111111111111111111111111111111111111111111111111"
	results := d.SupportsReservations(context.Background(), []string{pk})

	require.Contains(t, results, pk)
	assert.Nil(t, results[pk], "a failed query yields unknown, not false")
}

func TestDiscovery_FailedQueriesAreNotCached(t *testing.T) {
	p := NewPool(nil, nil)
	defer p.Close()
	d := NewDiscovery(p, time.Minute, nil)

	pk := "1111111111111111111111111111111111111111111111111111111111111111"
	d.SupportsReservations(context.Background(), []string{pk})

	d.mu.Lock()
	_, cached := d.cache[pk]
	d.mu.Unlock()
	assert.False(t, cached)
}

func TestDiscovery_CacheHit(t *testing.T) {
	p := NewPool(nil, nil)
	defer p.Close()
	d := NewDiscovery(p, time.Minute, nil)

	pk := "1111111111111111111111111111111111111111111111111111111111111111"
	d.mu.Lock()
	d.cache[pk] = cacheEntry{supported: true, expiresAt: time.Now().Add(time.Minute)}
	d.mu.Unlock()

	// Served from cache; no relay round trip even though none are connected.
	results := d.SupportsReservations(context.Background(), []string{pk})
	require.NotNil(t, results[pk])
	assert.True(t, *results[pk])

	d.ClearCache()
	results = d.SupportsReservations(context.Background(), []string{pk})
	assert.Nil(t, results[pk])
}
