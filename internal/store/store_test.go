// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/retention"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, Policy: retention.Default()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func testPosition(trackID string, ts time.Time) *models.Position {
	return &models.Position{
		TrackID:   trackID,
		Lat:       48.8584,
		Lng:       2.2945,
		Speed:     3.5,
		Accuracy:  10,
		Timestamp: ts,
	}
}

func TestPingAndClose(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPingCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ping with cancelled context = %v, want context.Canceled", err)
	}
}

func TestUpsertAndGetPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC().Truncate(time.Millisecond)

	pos := testPosition("abc123", ts)
	if err := s.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}

	got, err := s.GetPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Lat != pos.Lat || got.Lng != pos.Lng {
		t.Errorf("got (%v, %v), want (%v, %v)", got.Lat, got.Lng, pos.Lat, pos.Lng)
	}
	if !got.IsActive {
		t.Error("upserted position should be active")
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testPosition("abc123", time.Now().UTC())
	if err := s.UpsertPosition(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := testPosition("abc123", time.Now().UTC())
	second.Lat = 51.5007
	second.Lng = -0.1246
	if err := s.UpsertPosition(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.Lat != second.Lat || got.Lng != second.Lng {
		t.Errorf("got (%v, %v), want overwrite to (%v, %v)", got.Lat, got.Lng, second.Lat, second.Lng)
	}
}

func TestGetPositionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPosition(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPosition(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeactivatePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPosition(ctx, testPosition("abc123", time.Now().UTC())); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}
	if err := s.DeactivatePosition(ctx, "abc123"); err != nil {
		t.Fatalf("DeactivatePosition: %v", err)
	}

	got, err := s.GetPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.IsActive {
		t.Error("position should be inactive after deactivation")
	}

	// Idempotent on an already inactive track.
	if err := s.DeactivatePosition(ctx, "abc123"); err != nil {
		t.Errorf("second DeactivatePosition: %v", err)
	}
}

func TestDeactivatePositionNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeactivatePosition(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("DeactivatePosition(missing) = %v, want ErrNotFound", err)
	}
}

func TestUpsertReactivates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPosition(ctx, testPosition("abc123", time.Now().UTC())); err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}
	if err := s.DeactivatePosition(ctx, "abc123"); err != nil {
		t.Fatalf("DeactivatePosition: %v", err)
	}
	if err := s.UpsertPosition(ctx, testPosition("abc123", time.Now().UTC())); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.GetPosition(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if !got.IsActive {
		t.Error("fresh update should reactivate the track")
	}
}
