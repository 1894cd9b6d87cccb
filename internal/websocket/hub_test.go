// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/trackwire/internal/models"
)

func testEvent(trackID string) models.LocationEvent {
	return models.LocationEvent{
		TrackID:   trackID,
		Lat:       48.8584,
		Lng:       2.2945,
		Timestamp: time.Now().UTC(),
	}
}

// newHubClient builds a client without a network connection. The pumps are
// never started, so tests read from the send channel directly.
func newHubClient(h *Hub) *Client {
	return NewClient(h, nil, nil)
}

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestSubscribeAndFanOut(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	other := newHubClient(h)
	h.addClient(sub)
	h.addClient(other)
	h.Subscribe(sub, "abc123")

	h.fanOut(testEvent("abc123"))

	subMsgs := drain(sub)
	if len(subMsgs) != 2 {
		t.Fatalf("subscriber got %d messages, want ack + event", len(subMsgs))
	}
	if subMsgs[0].Type != MessageTypeSubscribed || subMsgs[0].Topic != "abc123" {
		t.Errorf("first message = %+v, want subscribed ack", subMsgs[0])
	}
	if subMsgs[1].Type != MessageTypeLocationUpdated || subMsgs[1].Topic != "abc123" {
		t.Errorf("second message = %+v, want locationUpdated", subMsgs[1])
	}

	if msgs := drain(other); len(msgs) != 0 {
		t.Errorf("unsubscribed client got %d messages, want 0", len(msgs))
	}
}

func TestFanOutOtherTopic(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	h.addClient(sub)
	h.Subscribe(sub, "abc123")
	drain(sub)

	h.fanOut(testEvent("other"))
	if msgs := drain(sub); len(msgs) != 0 {
		t.Errorf("got %d messages for a different track, want 0", len(msgs))
	}
}

func TestGlobalBroadcastReachesAll(t *testing.T) {
	h := NewHub(true)
	a := newHubClient(h)
	b := newHubClient(h)
	h.addClient(a)
	h.addClient(b)

	h.fanOut(testEvent("abc123"))

	for name, c := range map[string]*Client{"a": a, "b": b} {
		msgs := drain(c)
		if len(msgs) != 1 || msgs[0].Type != MessageTypeLocationUpdated {
			t.Errorf("client %s got %d messages, want 1 locationUpdated", name, len(msgs))
		}
	}
}

func TestGlobalBroadcastDeliversOncePerClient(t *testing.T) {
	h := NewHub(true)
	sub := newHubClient(h)
	h.addClient(sub)
	h.Subscribe(sub, "abc123")
	drain(sub)

	// Subscribed and in the global set; must still receive exactly once.
	h.fanOut(testEvent("abc123"))

	msgs := drain(sub)
	if len(msgs) != 1 {
		t.Errorf("subscriber in global mode got %d copies, want 1", len(msgs))
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	h.addClient(sub)
	h.Subscribe(sub, "abc123")
	h.Subscribe(sub, "abc123")

	if got := h.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", got)
	}

	msgs := drain(sub)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 acks", len(msgs))
	}
	for _, msg := range msgs {
		if msg.Type != MessageTypeSubscribed {
			t.Errorf("message type = %q, want subscribed", msg.Type)
		}
	}

	drain(sub)
	h.fanOut(testEvent("abc123"))
	if got := len(drain(sub)); got != 1 {
		t.Errorf("double-subscribed client got %d copies, want 1", got)
	}
}

func TestSubscribeBeforeRegistration(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)

	// The read pump can process a subscribe before the run loop handles the
	// Register send. The subscription must take effect, not just be acked.
	h.Subscribe(sub, "abc123")
	h.addClient(sub)

	msgs := drain(sub)
	if len(msgs) != 1 || msgs[0].Type != MessageTypeSubscribed {
		t.Fatalf("messages = %+v, want a subscribed ack", msgs)
	}
	if got := h.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", got)
	}

	h.fanOut(testEvent("abc123"))
	if got := len(drain(sub)); got != 1 {
		t.Errorf("early subscriber got %d events, want 1", got)
	}
}

func TestRemoveUnregisteredClientClearsSubscriptions(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	h.Subscribe(sub, "abc123")

	// Disconnect before the Register send was ever processed.
	h.removeClient(sub)

	if got := h.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount = %d, want 0", got)
	}
	drain(sub)
	if _, ok := <-sub.send; ok {
		t.Error("send channel still open after removal")
	}
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	h.addClient(sub)
	h.Subscribe(sub, "abc123")
	h.Unsubscribe(sub, "abc123")

	msgs := drain(sub)
	if len(msgs) != 2 || msgs[1].Type != MessageTypeUnsubscribed {
		t.Fatalf("messages = %+v, want subscribed then unsubscribed", msgs)
	}

	h.fanOut(testEvent("abc123"))
	if got := len(drain(sub)); got != 0 {
		t.Errorf("unsubscribed client got %d messages, want 0", got)
	}
	if got := h.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount = %d, want 0", got)
	}
}

func TestUnsubscribeUnknownTopicStillAcks(t *testing.T) {
	h := NewHub(false)
	c := newHubClient(h)
	h.addClient(c)
	h.Unsubscribe(c, "never-subscribed")

	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Type != MessageTypeUnsubscribed {
		t.Errorf("messages = %+v, want a single unsubscribed ack", msgs)
	}
}

func TestRemoveClientDropsSubscriptions(t *testing.T) {
	h := NewHub(false)
	sub := newHubClient(h)
	h.addClient(sub)
	h.Subscribe(sub, "abc123")
	h.removeClient(sub)

	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
	if got := h.SubscriptionCount(); got != 0 {
		t.Errorf("SubscriptionCount = %d, want 0", got)
	}
	// Send channel must be closed.
	drain(sub)
	if _, ok := <-sub.send; ok {
		t.Error("send channel still open after removal")
	}
}

func TestSlowClientEvicted(t *testing.T) {
	h := NewHub(true)
	slow := newHubClient(h)
	h.addClient(slow)

	// Fill the send buffer, then one more event forces eviction.
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- Message{Type: MessageTypePong}
	}
	h.fanOut(testEvent("abc123"))

	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0 after eviction", got)
	}
}

func TestPublishLocationDropsWhenFull(t *testing.T) {
	h := NewHub(true)
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.PublishLocation(testEvent("abc123"))
	}
	if got := len(h.broadcast); got != cap(h.broadcast) {
		t.Errorf("broadcast depth = %d, want %d", got, cap(h.broadcast))
	}
}

func TestRunWithContextLifecycle(t *testing.T) {
	h := NewHub(true)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.RunWithContext(ctx) }()

	c := newHubClient(h)
	h.Register <- c

	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.PublishLocation(testEvent("abc123"))
	waitFor(t, func() bool { return len(drainNonDestructive(c)) > 0 || len(c.send) > 0 })

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunWithContext did not stop on cancel")
	}

	if got := h.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d after shutdown, want 0", got)
	}
}

func drainNonDestructive(c *Client) []Message {
	out := make([]Message, 0, len(c.send))
	for i := 0; i < len(c.send); i++ {
		out = append(out, <-c.send)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
