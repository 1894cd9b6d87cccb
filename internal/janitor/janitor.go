// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package janitor removes stale tracks on a fixed interval.
//
// A track is stale when its last update is older than the retention policy's
// StaleAfter window. Each sweep deletes stale position and trail records and
// reports how many of each were removed. Sweeps also run on demand through
// the cleanup endpoint.
package janitor

import (
	"context"
	"time"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/metrics"
	"github.com/tomtom215/trackwire/internal/models"
	"github.com/tomtom215/trackwire/internal/store"
)

// DefaultInterval is how often the janitor sweeps when not configured.
const DefaultInterval = time.Hour

// Janitor periodically deletes stale tracks from the store.
type Janitor struct {
	store    *store.Store
	interval time.Duration
}

// New creates a Janitor. A non-positive interval falls back to
// DefaultInterval.
func New(s *store.Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{store: s, interval: interval}
}

// Serve implements suture.Service. It sweeps every interval until the
// context is canceled. Sweep failures are logged and counted but do not stop
// the service; the store may recover by the next tick.
func (j *Janitor) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", j.interval).Msg("janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunNow(ctx); err != nil {
				logging.Error().Err(err).Msg("cleanup sweep failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (j *Janitor) String() string {
	return "janitor"
}

// RunNow executes one sweep immediately and returns what it removed.
func (j *Janitor) RunNow(ctx context.Context) (models.CleanupResult, error) {
	cutoff := j.store.Policy().StaleCutoff(time.Now().UTC())

	result, err := j.store.DeleteStaleBefore(ctx, cutoff, cutoff)
	metrics.RecordJanitorRun(result.DeletedLocations, result.DeletedPaths, err)
	if err != nil {
		return result, err
	}

	if result.DeletedLocations > 0 || result.DeletedPaths > 0 {
		logging.Info().
			Int("deleted_locations", result.DeletedLocations).
			Int("deleted_paths", result.DeletedPaths).
			Time("cutoff", cutoff).
			Msg("cleanup sweep removed stale tracks")
	}
	return result, nil
}
