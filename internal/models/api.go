// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package models

import "time"

// APIResponse is the envelope for all HTTP API responses.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Metadata carries response timing information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
}

// PositionResponse wraps a position with the 30-second freshness flag.
type PositionResponse struct {
	Position
	IsRecent bool `json:"is_recent"`
}

// TrailResponse is the payload for trail queries. Points is never null:
// unknown track identifiers yield an empty slice.
type TrailResponse struct {
	TrackID string       `json:"track_id"`
	Points  []TrailPoint `json:"points"`
}

// GenerateTrackResponse is the payload for track identifier generation.
type GenerateTrackResponse struct {
	TrackID string `json:"track_id"`
}

// HealthStatus reports process and store health.
type HealthStatus struct {
	Status           string  `json:"status"`
	StoreConnected   bool    `json:"store_connected"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	ConnectedClients int     `json:"connected_clients"`
	Version          string  `json:"version,omitempty"`
}
