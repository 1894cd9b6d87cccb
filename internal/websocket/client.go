// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/metrics"
	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/pipeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, location payloads are small
)

// clientIDCounter generates unique, monotonically increasing client IDs so
// fan-out can visit clients in a consistent order.
var clientIDCounter atomic.Uint64

// UpdateSubmitter accepts location updates arriving over the socket.
// Satisfied by *pipeline.Pipeline.
type UpdateSubmitter interface {
	Submit(ctx context.Context, req pipeline.UpdateRequest) (*models.Position, error)
}

// inboundMessage is the envelope clients send. Topic names a track
// identifier for subscribe/unsubscribe; Data carries the update payload for
// locationUpdate.
type inboundMessage struct {
	Type  string                  `json:"type"`
	Topic string                  `json:"topic,omitempty"`
	Data  *pipeline.UpdateRequest `json:"data,omitempty"`
}

// errorData is the payload of outbound error messages.
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pongData is the payload of keep-alive replies.
type pongData struct {
	Timestamp time.Time `json:"timestamp"`
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id        uint64
	hub       *Hub
	conn      *websocket.Conn
	submitter UpdateSubmitter
	send      chan Message

	// sendMu guards send against enqueue-after-close. The hub closes send
	// when it evicts a client, which can race with an acknowledgement from
	// the read pump.
	sendMu sync.RWMutex
	closed bool
}

// NewClient creates a Client for an upgraded connection. The submitter may
// be nil, in which case locationUpdate messages are rejected.
func NewClient(hub *Hub, conn *websocket.Conn, submitter UpdateSubmitter) *Client {
	return &Client{
		id:        clientIDCounter.Add(1),
		hub:       hub,
		conn:      conn,
		submitter: submitter,
		send:      make(chan Message, 256),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// enqueue attempts a non-blocking send to the client's buffer. Messages to a
// closed or full buffer are dropped; fan-out handles eviction separately.
func (c *Client) enqueue(msg Message) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		metrics.WSMessagesDropped.Inc()
	}
}

// closeSend marks the client closed and closes its send channel. Called by
// the hub exactly once per client.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads inbound messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			} else if _, ok := err.(*websocket.CloseError); !ok && !errors.Is(err, websocket.ErrCloseSent) {
				// Malformed JSON terminates the connection. The next read
				// would be misframed anyway.
				metrics.WSMessagesReceived.WithLabelValues("invalid").Inc()
			}
			break
		}
		c.handleMessage(msg)
	}
}

// handleMessage dispatches one inbound message.
func (c *Client) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		metrics.WSMessagesReceived.WithLabelValues(MessageTypeSubscribe).Inc()
		if msg.Topic == "" {
			c.sendError("VALIDATION_ERROR", "subscribe requires a topic")
			return
		}
		c.hub.Subscribe(c, msg.Topic)

	case MessageTypeUnsubscribe:
		metrics.WSMessagesReceived.WithLabelValues(MessageTypeUnsubscribe).Inc()
		if msg.Topic == "" {
			c.sendError("VALIDATION_ERROR", "unsubscribe requires a topic")
			return
		}
		c.hub.Unsubscribe(c, msg.Topic)

	case MessageTypeLocationUpdate:
		metrics.WSMessagesReceived.WithLabelValues(MessageTypeLocationUpdate).Inc()
		c.handleLocationUpdate(msg)

	case MessageTypePing:
		metrics.WSMessagesReceived.WithLabelValues(MessageTypePing).Inc()
		c.enqueue(Message{Type: MessageTypePong, Data: pongData{Timestamp: time.Now().UTC()}})

	default:
		metrics.WSMessagesReceived.WithLabelValues("invalid").Inc()
		c.sendError("VALIDATION_ERROR", "unknown message type: "+msg.Type)
	}
}

// handleLocationUpdate submits an update from the socket through the same
// pipeline the HTTP handler uses. Errors go back to the sender only; they
// are never broadcast.
func (c *Client) handleLocationUpdate(msg inboundMessage) {
	if c.submitter == nil || msg.Data == nil {
		c.sendError("VALIDATION_ERROR", "locationUpdate requires a data payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	_, err := c.submitter.Submit(ctx, *msg.Data)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrOutOfRange):
		c.sendError("OUT_OF_RANGE", err.Error())
	case errors.Is(err, pipeline.ErrInvalidInput):
		c.sendError("VALIDATION_ERROR", err.Error())
	default:
		logging.Error().Err(err).Msg("websocket update failed")
		c.sendError("DATABASE_ERROR", "failed to store location update")
	}
}

func (c *Client) sendError(code, message string) {
	c.enqueue(Message{Type: MessageTypeError, Data: errorData{Code: code, Message: message}})
}

// writePump writes queued messages and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
