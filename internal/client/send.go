// ABOUTME: Outbound send path - build, wrap both copies, optimistic ingest, publish
// ABOUTME: Publish failures surface to the caller but never retract local state

package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Synvya/ai-concierge-sub000/internal/envelope"
	"github.com/Synvya/ai-concierge-sub000/internal/message"
)

// SendRequest builds and sends a reservation request, returning the new
// thread id (the request rumor's id).
func (c *Client) SendRequest(ctx context.Context, recipientPub string, p message.Request) (string, error) {
	draft, err := message.BuildRequest(p, recipientPub)
	if err != nil {
		return "", err
	}
	return c.send(ctx, recipientPub, draft)
}

// SendResponse builds and sends a response in the thread rooted at rootID.
func (c *Client) SendResponse(ctx context.Context, recipientPub, rootID string, p message.Response) (string, error) {
	draft, err := message.BuildResponse(p, recipientPub, rootID)
	if err != nil {
		return "", err
	}
	return c.send(ctx, recipientPub, draft)
}

// SendModificationRequest proposes a new time on an existing thread.
func (c *Client) SendModificationRequest(ctx context.Context, recipientPub, rootID string, p message.ModificationRequest) (string, error) {
	draft, err := message.BuildModificationRequest(p, recipientPub, rootID)
	if err != nil {
		return "", err
	}
	return c.send(ctx, recipientPub, draft)
}

// SendModificationResponse answers a pending proposal on an existing thread.
func (c *Client) SendModificationResponse(ctx context.Context, recipientPub, rootID string, p message.ModificationResponse) (string, error) {
	draft, err := message.BuildModificationResponse(p, recipientPub, rootID)
	if err != nil {
		return "", err
	}
	return c.send(ctx, recipientPub, draft)
}

// send wraps the draft for both parties, applies the optimistic local
// update, then publishes both wraps. The rumor id is returned even when
// publishing fails: local and network state may diverge transiently and
// reconcile through the inbound feed.
func (c *Client) send(ctx context.Context, recipientPub string, draft envelope.Draft) (string, error) {
	requestID := uuid.New().String()

	pair, err := envelope.WrapForBoth(draft, c.keypair.PrivateKey, recipientPub)
	if err != nil {
		return "", fmt.Errorf("wrapping message: %w", err)
	}

	// Both wraps will come back on our own feed; skip the unwrap work.
	c.seen.Seen(pair.Recipient.ID)
	c.seen.Seen(pair.Self.ID)

	// Optimistic ingest first. The sent message shows up locally whether
	// or not the network cooperates.
	msg, err := message.Parse(pair.Rumor)
	if err != nil {
		// Builders validated the payload; a parse failure here is a bug.
		return "", fmt.Errorf("parsing own message: %w", err)
	}
	c.ingest(msg)

	c.logger.Debug("publishing message",
		"request_id", requestID,
		"rumor_id", pair.Rumor.ID,
		"kind", draft.Kind,
		"recipient", recipientPub)

	// Sending works with or without the live feed; Connect is idempotent
	// and reuses whatever connections already exist.
	if err := c.pool.Connect(ctx); err != nil {
		return pair.Rumor.ID, fmt.Errorf("connecting to relays: %w", err)
	}

	if err := c.pool.PublishPair(ctx, pair.Recipient, pair.Self); err != nil {
		c.logger.Warn("publish failed, local state kept",
			"request_id", requestID,
			"rumor_id", pair.Rumor.ID,
			"error", err)
		return pair.Rumor.ID, fmt.Errorf("publishing message: %w", err)
	}

	return pair.Rumor.ID, nil
}
