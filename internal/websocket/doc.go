// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

/*
Package websocket provides the real-time broadcast layer for location events.

It uses gorilla/websocket with a hub-client architecture. The Hub tracks
connected clients and their topic subscriptions; each topic is a track
identifier. Every accepted location update becomes one locationUpdated
message, delivered to the track's subscribers and, when global broadcast is
enabled, to every other connected client as well. A client receives each
event at most once.

Each client runs two goroutines:

  - readPump: reads inbound messages (subscribe, unsubscribe, locationUpdate,
    ping) and dispatches them
  - writePump: drains the client's send buffer and sends keepalive pings

Inbound locationUpdate messages are submitted through the same update
pipeline the HTTP endpoint uses, so validation and persistence behave
identically on both surfaces. Validation errors go back to the sending
client as error messages and are never broadcast.

Delivery is best effort. The hub never blocks on a slow client: a client
whose send buffer is full is evicted, and a full broadcast channel drops the
event. Both conditions are counted in metrics.
*/
package websocket
