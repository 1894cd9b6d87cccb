// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/retention"
	"github.com/tomtom215/trackwire/internal/store"
)

type captureBroadcaster struct {
	mu     sync.Mutex
	events []models.LocationEvent
}

func (b *captureBroadcaster) PublishLocation(event models.LocationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) captured() []models.LocationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.LocationEvent(nil), b.events...)
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *captureBroadcaster) {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true, Policy: retention.Default()})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	b := &captureBroadcaster{}
	return New(s, b), s, b
}

func f64(v float64) *float64 { return &v }

func validRequest() UpdateRequest {
	return UpdateRequest{
		TrackID: "abc123",
		Lat:     f64(48.8584),
		Lng:     f64(2.2945),
		Speed:   f64(3.5),
	}
}

func TestSubmitAccepted(t *testing.T) {
	p, s, b := newTestPipeline(t)
	ctx := context.Background()

	pos, err := p.Submit(ctx, validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pos.TrackID != "abc123" || pos.Lat != 48.8584 || pos.Lng != 2.2945 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if !pos.IsActive {
		t.Error("accepted update should mark the track active")
	}
	if pos.Timestamp.IsZero() {
		t.Error("accepted update should carry a server timestamp")
	}

	stored, err := s.GetPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if stored.Lat != pos.Lat || stored.Lng != pos.Lng {
		t.Errorf("stored position %+v does not match returned %+v", stored, pos)
	}

	points, err := s.GetTrail(ctx, "abc123", 0)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("trail has %d points, want 1", len(points))
	}

	events := b.captured()
	if len(events) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(events))
	}
	if events[0].TrackID != "abc123" || !events[0].Timestamp.Equal(pos.Timestamp) {
		t.Errorf("broadcast event %+v does not match position %+v", events[0], pos)
	}
}

func TestSubmitDefaultsOptionalFields(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	req := UpdateRequest{TrackID: "abc123", Lat: f64(1), Lng: f64(2)}

	pos, err := p.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pos.Speed != 0 || pos.Accuracy != 0 {
		t.Errorf("speed/accuracy = %v/%v, want zero defaults", pos.Speed, pos.Accuracy)
	}
}

func TestSubmitZeroCoordinatesValid(t *testing.T) {
	p, _, b := newTestPipeline(t)
	req := UpdateRequest{TrackID: "abc123", Lat: f64(0), Lng: f64(0)}

	if _, err := p.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit with (0, 0): %v", err)
	}
	if len(b.captured()) != 1 {
		t.Error("update at the null island should still broadcast")
	}
}

func TestSubmitRejected(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*UpdateRequest)
		wantErr error
	}{
		{
			name:    "missing track id",
			mutate:  func(r *UpdateRequest) { r.TrackID = "" },
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing latitude",
			mutate:  func(r *UpdateRequest) { r.Lat = nil },
			wantErr: ErrInvalidInput,
		},
		{
			name:    "missing longitude",
			mutate:  func(r *UpdateRequest) { r.Lng = nil },
			wantErr: ErrInvalidInput,
		},
		{
			name:    "latitude above range",
			mutate:  func(r *UpdateRequest) { r.Lat = f64(90.1) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "latitude below range",
			mutate:  func(r *UpdateRequest) { r.Lat = f64(-90.1) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "longitude above range",
			mutate:  func(r *UpdateRequest) { r.Lng = f64(180.1) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "longitude below range",
			mutate:  func(r *UpdateRequest) { r.Lng = f64(-180.1) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "negative speed",
			mutate:  func(r *UpdateRequest) { r.Speed = f64(-1) },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "negative accuracy",
			mutate:  func(r *UpdateRequest) { r.Accuracy = f64(-0.5) },
			wantErr: ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s, b := newTestPipeline(t)
			req := validRequest()
			tt.mutate(&req)

			_, err := p.Submit(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Submit = %v, want %v", err, tt.wantErr)
			}
			if len(b.captured()) != 0 {
				t.Error("rejected update must not broadcast")
			}
			if req.TrackID != "" {
				if _, err := s.GetPosition(context.Background(), req.TrackID); !errors.Is(err, store.ErrNotFound) {
					t.Error("rejected update must not persist")
				}
			}
		})
	}
}

func TestSubmitBoundaryCoordinates(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	req := UpdateRequest{TrackID: "abc123", Lat: f64(90), Lng: f64(-180)}
	if _, err := p.Submit(context.Background(), req); err != nil {
		t.Errorf("Submit at coordinate bounds: %v", err)
	}
}

func TestSubmitNilBroadcaster(t *testing.T) {
	s, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer s.Close()

	p := New(s, nil)
	if _, err := p.Submit(context.Background(), validRequest()); err != nil {
		t.Errorf("Submit without broadcaster: %v", err)
	}
}

func TestGenerateTrackID(t *testing.T) {
	a := GenerateTrackID()
	b := GenerateTrackID()
	if a == "" || b == "" {
		t.Fatal("GenerateTrackID returned empty identifier")
	}
	if a == b {
		t.Error("GenerateTrackID returned duplicate identifiers")
	}
}
