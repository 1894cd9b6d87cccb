// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/metrics"
	"github.com/tomtom215/trackwire/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication.
const (
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypeSubscribed      = "subscribed"
	MessageTypeUnsubscribed    = "unsubscribed"
	MessageTypeLocationUpdate  = "locationUpdate"
	MessageTypeLocationUpdated = "locationUpdated"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// Message is an outbound WebSocket message. Topic is set on subscription
// acknowledgements and on locationUpdated events, where it names the track
// identifier the message concerns.
type Message struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub maintains the set of connected clients and their topic subscriptions,
// and fans location events out to them.
//
// A topic is a track identifier. Clients subscribed to a track always
// receive its events; when global broadcast is enabled every connected
// client receives every event. A client never receives the same event
// twice.
type Hub struct {
	clients map[*Client]bool
	topics  map[string]map[*Client]bool

	broadcast  chan models.LocationEvent
	Register   chan *Client
	Unregister chan *Client

	// globalBroadcast delivers every event to every client, subscribed
	// or not. Configured once at construction.
	globalBroadcast bool

	mu sync.RWMutex
}

// NewHub creates a Hub. With globalBroadcast set, every connected client
// receives every location event; otherwise only topic subscribers do.
func NewHub(globalBroadcast bool) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		topics:          make(map[string]map[*Client]bool),
		broadcast:       make(chan models.LocationEvent, 256),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		globalBroadcast: globalBroadcast,
	}
}

// RunWithContext runs the hub event loop until the context is canceled.
// Designed for suture supervision: on cancellation all clients are closed
// and ctx.Err() is returned, so a supervisor restart starts from a clean
// client set.
//
// Selection is priority based. When Go's select has multiple ready channels
// it picks randomly; checking shutdown first, then client lifecycle, then
// broadcasts keeps client state consistent before any fan-out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until any event arrives
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	// Unconditional: a client may hold subscriptions without having made it
	// into the client set yet.
	h.dropClientLocked(client)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// dropClientLocked removes a client from the client set and every topic, and
// closes its send channel. Caller holds h.mu.
func (h *Hub) dropClientLocked(client *Client) {
	delete(h.clients, client)
	for topic, subscribers := range h.topics {
		if subscribers[client] {
			delete(subscribers, client)
			metrics.WSSubscriptions.Dec()
		}
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	client.closeSend()
}

// Subscribe adds a client to a track topic and acknowledges with a
// subscribed message. Subscribing twice to the same topic is a no-op apart
// from the acknowledgement. The client need not be registered yet: the read
// pump can deliver a subscribe before the run loop has processed the
// Register send, and the subscription must not be lost to that window.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	subscribers, ok := h.topics[topic]
	if !ok {
		subscribers = make(map[*Client]bool)
		h.topics[topic] = subscribers
	}
	if !subscribers[client] {
		subscribers[client] = true
		metrics.WSSubscriptions.Inc()
	}
	h.mu.Unlock()

	client.enqueue(Message{Type: MessageTypeSubscribed, Topic: topic})
}

// Unsubscribe removes a client from a track topic and acknowledges with an
// unsubscribed message. Unsubscribing from a topic the client never joined
// still acknowledges.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	if subscribers, ok := h.topics[topic]; ok && subscribers[client] {
		delete(subscribers, client)
		metrics.WSSubscriptions.Dec()
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()

	client.enqueue(Message{Type: MessageTypeUnsubscribed, Topic: topic})
}

// PublishLocation enqueues a location event for fan-out. Non-blocking: when
// the broadcast buffer is full the event is dropped rather than stalling the
// update pipeline.
func (h *Hub) PublishLocation(event models.LocationEvent) {
	select {
	case h.broadcast <- event:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("track_id", event.TrackID).Msg("broadcast channel full, dropping location event")
	}
}

// fanOut delivers one event to its recipient set: subscribers of the track's
// topic, plus every other client when global broadcast is enabled. Each
// client receives the event at most once.
//
// Clients are visited in ID order so delivery and eviction are
// deterministic. A client whose send buffer is full is dropped and evicted.
func (h *Hub) fanOut(event models.LocationEvent) {
	message := Message{
		Type:  MessageTypeLocationUpdated,
		Topic: event.TrackID,
		Data:  event,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	recipients := make(map[*Client]bool, len(h.clients))
	for client := range h.topics[event.TrackID] {
		recipients[client] = true
	}
	if h.globalBroadcast {
		for client := range h.clients {
			recipients[client] = true
		}
	}
	if len(recipients) == 0 {
		return
	}

	ordered := make([]*Client, 0, len(recipients))
	for client := range recipients {
		ordered = append(ordered, client)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].id < ordered[j].id
	})

	var toRemove []*Client
	for _, client := range ordered {
		select {
		case client.send <- message:
			metrics.WSEventsBroadcast.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		metrics.WSMessagesDropped.Inc()
		h.dropClientLocked(client)
		logging.Warn().Uint64("client_id", client.id).Msg("client send buffer full, evicting")
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// logGracefulShutdown closes every client and logs the shutdown. The context
// error is not logged as an error field because cancellation is the expected
// path during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes every connected client in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		h.dropClientLocked(client)
	}
	metrics.WSConnections.Set(0)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionCount returns the number of active topic subscriptions.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subscribers := range h.topics {
		n += len(subscribers)
	}
	return n
}
