// ABOUTME: Gift-wrap subscription feed with end-of-backlog signaling
// ABOUTME: Serializes events from all relays into one onEvent goroutine

package relay

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
)

// Feed is a live gift-wrap subscription across the pool's relays.
type Feed struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens the inbound feed for wraps addressed to pubkey. since,
// when non-nil, requests historical backlog from that timestamp. onEvent
// is invoked from a single goroutine for every wrap, in arrival order;
// onReady fires exactly once, after every connected relay has signaled
// that its stored backlog is complete.
//
// Stop the feed by calling Feed.Stop; stopping halts future delivery and
// nothing else.
func (p *Pool) Subscribe(ctx context.Context, pubkey string, since *nostr.Timestamp, onEvent func(*nostr.Event), onReady func()) (*Feed, error) {
	relays := p.connected()
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	subCtx, cancel := context.WithCancel(ctx)

	filter := nostr.Filter{
		Kinds: []int{envelope.KindGiftWrap},
		Tags:  nostr.TagMap{"p": []string{pubkey}},
		Since: since,
	}

	events := make(chan *nostr.Event, 64)
	eose := make(chan struct{}, len(relays))

	var active int
	var wg sync.WaitGroup
	for _, r := range relays {
		sub, err := r.Subscribe(subCtx, nostr.Filters{filter})
		if err != nil {
			p.logger.Warn("subscription failed", "url", r.URL, "error", err)
			continue
		}
		active++

		wg.Add(1)
		go func(r *nostr.Relay, sub *nostr.Subscription) {
			defer wg.Done()
			defer sub.Unsub()
			// EndOfStoredEvents is closed on EOSE; nil it out after the
			// first signal so the select stops picking it.
			eoseCh := sub.EndOfStoredEvents
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						if eoseCh != nil {
							eose <- struct{}{}
						}
						return
					}
					select {
					case events <- ev:
					case <-subCtx.Done():
						return
					}
				case <-eoseCh:
					eoseCh = nil
					eose <- struct{}{}
				case <-subCtx.Done():
					if eoseCh != nil {
						eose <- struct{}{}
					}
					return
				}
			}
		}(r, sub)
	}

	if active == 0 {
		cancel()
		return nil, ErrNoRelays
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		remaining := active
		ready := false
		for {
			select {
			case ev := <-events:
				onEvent(ev)
			case <-eose:
				remaining--
				if remaining == 0 && !ready {
					ready = true
					p.logger.Debug("backlog complete", "relays", active)
					onReady()
				}
			case <-subCtx.Done():
				// Drain nothing further; delivery stops here. Ingested
				// state stays with the caller.
				wg.Wait()
				return
			}
		}
	}()

	return &Feed{cancel: cancel, done: done}, nil
}

// Stop cancels the feed and waits for delivery to halt.
func (f *Feed) Stop() {
	f.cancel()
	<-f.done
}
