// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/retention"
	"github.com/tomtom215/trackwire/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true, Policy: retention.Default()})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTrack(t *testing.T, s *store.Store, trackID string, ts time.Time) {
	t.Helper()
	ctx := context.Background()
	pos := &models.Position{TrackID: trackID, Lat: 1, Lng: 2, Timestamp: ts}
	if err := s.UpsertPosition(ctx, pos); err != nil {
		t.Fatalf("UpsertPosition %s: %v", trackID, err)
	}
	point := models.TrailPoint{Lat: 1, Lng: 2, Timestamp: ts}
	if err := s.AppendTrailPoint(ctx, trackID, point); err != nil {
		t.Fatalf("AppendTrailPoint %s: %v", trackID, err)
	}
}

func TestRunNowRemovesStaleTracks(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	seedTrack(t, s, "stale1", now.Add(-48*time.Hour))
	seedTrack(t, s, "fresh1", now)

	j := New(s, time.Hour)
	result, err := j.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if result.DeletedLocations != 1 {
		t.Errorf("DeletedLocations = %d, want 1", result.DeletedLocations)
	}

	if _, err := s.GetPosition(context.Background(), "stale1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("stale track survived the sweep")
	}
	if _, err := s.GetPosition(context.Background(), "fresh1"); err != nil {
		t.Errorf("fresh track removed: %v", err)
	}
}

func TestRunNowEmptyStore(t *testing.T) {
	j := New(newTestStore(t), time.Hour)
	result, err := j.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if result.DeletedLocations != 0 || result.DeletedPaths != 0 {
		t.Errorf("unexpected deletions on empty store: %+v", result)
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	j := New(newTestStore(t), 0)
	if j.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", j.interval, DefaultInterval)
	}
}

func TestServeSweepsAndStops(t *testing.T) {
	s := newTestStore(t)
	seedTrack(t, s, "stale1", time.Now().UTC().Add(-48*time.Hour))

	j := New(s, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- j.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.GetPosition(context.Background(), "stale1"); errors.Is(err, store.ErrNotFound) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}

	if _, err := s.GetPosition(context.Background(), "stale1"); !errors.Is(err, store.ErrNotFound) {
		t.Error("ticker sweep never removed the stale track")
	}
}

func TestString(t *testing.T) {
	if got := New(newTestStore(t), time.Hour).String(); got != "janitor" {
		t.Errorf("String() = %q, want janitor", got)
	}
}
