// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package pipeline implements the location update path: validate the payload,
// persist the position and trail point, then publish a broadcast event.
//
// Both ingest surfaces (the HTTP handler and the WebSocket locationUpdate
// message) submit through this package, so an update is handled identically
// regardless of where it arrived.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/metrics"
	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/store"
	"github.com/tomtom215/trackwire/internal/validation"
)

// Sentinel errors callers map to API error codes.
var (
	// ErrInvalidInput marks a payload with missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutOfRange marks numeric fields outside their valid range:
	// coordinates beyond the latitude or longitude bounds, or negative
	// speed and accuracy.
	ErrOutOfRange = errors.New("value out of range")
)

// Broadcaster receives the event emitted for every accepted update.
type Broadcaster interface {
	PublishLocation(event models.LocationEvent)
}

// UpdateRequest is one inbound location update. Coordinate and telemetry
// fields are pointers so a missing field is distinguishable from a zero
// value: lat 0 and lng 0 are valid coordinates.
type UpdateRequest struct {
	TrackID  string   `json:"track_id" validate:"required,min=1,max=128"`
	Lat      *float64 `json:"lat" validate:"required,latitude"`
	Lng      *float64 `json:"lng" validate:"required,longitude"`
	Speed    *float64 `json:"speed" validate:"omitempty,gte=0"`
	Accuracy *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

// Pipeline validates, persists, and broadcasts location updates.
type Pipeline struct {
	store       *store.Store
	broadcaster Broadcaster
}

// New builds a Pipeline. The broadcaster may be nil, in which case accepted
// updates are persisted but not published.
func New(s *store.Store, b Broadcaster) *Pipeline {
	return &Pipeline{store: s, broadcaster: b}
}

// GenerateTrackID returns a fresh opaque track identifier.
func GenerateTrackID() string {
	return uuid.NewString()
}

// Submit runs one update through the full path. On success it returns the
// stored position. Validation failures return ErrInvalidInput or
// ErrOutOfRange; persistence failures return the wrapped store error.
//
// The position write, the trail append, and the broadcast happen in that
// order, so a published event always refers to persisted state.
func (p *Pipeline) Submit(ctx context.Context, req UpdateRequest) (*models.Position, error) {
	start := time.Now()
	pos, err := p.submit(ctx, req)
	metrics.RecordUpdate(time.Since(start), rejectReason(err))
	return pos, err
}

func (p *Pipeline) submit(ctx context.Context, req UpdateRequest) (*models.Position, error) {
	if verr := validation.ValidateStruct(&req); verr != nil {
		sentinel := ErrInvalidInput
		if verr.HasTag("latitude") || verr.HasTag("longitude") || verr.HasTag("gte") {
			sentinel = ErrOutOfRange
		}
		logging.Debug().
			Str("track_id", req.TrackID).
			Str("reason", verr.Error()).
			Msg("update rejected")
		return nil, fmt.Errorf("%w: %s", sentinel, verr.Error())
	}

	pos := &models.Position{
		TrackID:   req.TrackID,
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Timestamp: time.Now().UTC(),
		IsActive:  true,
	}
	if req.Speed != nil {
		pos.Speed = *req.Speed
	}
	if req.Accuracy != nil {
		pos.Accuracy = *req.Accuracy
	}

	if err := p.store.UpsertPosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}
	point := models.TrailPoint{Lat: pos.Lat, Lng: pos.Lng, Timestamp: pos.Timestamp}
	if err := p.store.AppendTrailPoint(ctx, pos.TrackID, point); err != nil {
		return nil, fmt.Errorf("persist trail point: %w", err)
	}

	if p.broadcaster != nil {
		p.broadcaster.PublishLocation(models.EventFromPosition(pos))
	}

	logging.Debug().
		Str("track_id", pos.TrackID).
		Float64("lat", pos.Lat).
		Float64("lng", pos.Lng).
		Msg("update accepted")
	return pos, nil
}

func rejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "store_error"
	}
}
