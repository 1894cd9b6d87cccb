// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package models defines the TrackWire data model and API envelope types.
package models

import "time"

// Position is the latest known location for one track identifier.
// Exactly one record exists per track; every accepted update replaces it.
type Position struct {
	TrackID   string    `json:"track_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	IsActive  bool      `json:"is_active"`
}

// TrailPoint is a single historical position sample.
type TrailPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Trail is the bounded, time-windowed sequence of recent positions for one
// track identifier. Points are ordered by arrival time, oldest first.
type Trail struct {
	TrackID     string       `json:"track_id"`
	Points      []TrailPoint `json:"points"`
	LastUpdated time.Time    `json:"last_updated"`
}

// LocationEvent is the broadcast payload emitted for every accepted update.
type LocationEvent struct {
	TrackID   string    `json:"track_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFromPosition builds the broadcast event for an accepted position.
func EventFromPosition(p *Position) LocationEvent {
	return LocationEvent{
		TrackID:   p.TrackID,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Speed:     p.Speed,
		Accuracy:  p.Accuracy,
		Timestamp: p.Timestamp,
	}
}

// StoreStats summarizes store contents for the stats endpoint.
type StoreStats struct {
	TotalTracks    int `json:"total_tracks"`
	ActiveTracks   int `json:"active_tracks"`
	InactiveTracks int `json:"inactive_tracks"`
	TotalTrails    int `json:"total_trails"`
}

// CleanupResult reports how many records a retention pass removed.
type CleanupResult struct {
	DeletedLocations int `json:"deleted_locations"`
	DeletedPaths     int `json:"deleted_paths"`
}
