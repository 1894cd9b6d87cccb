// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/models"
)

// AppendTrailPoint appends a point to a track's trail, creating the trail if
// none exists. The retention policy is applied after the append, so the
// stored trail never exceeds the configured point count or age window.
func (s *Store) AppendTrailPoint(ctx context.Context, trackID string, point models.TrailPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockTrack(trackID)
	defer unlock()

	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		trail := models.Trail{TrackID: trackID}
		item, err := txn.Get(trailKey(trackID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &trail)
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First point for this track.
		default:
			return err
		}

		trail.Points = s.policy.TrimPoints(append(trail.Points, point), now)
		trail.LastUpdated = point.Timestamp

		data, err := json.Marshal(&trail)
		if err != nil {
			return err
		}
		return txn.Set(trailKey(trackID), data)
	})
	if err != nil {
		return fmt.Errorf("append trail point %s: %w", trackID, err)
	}
	return nil
}

// GetTrail returns a track's trail points no older than the since window,
// oldest first. A zero since returns the whole stored trail. Returns
// ErrNotFound when the track has no trail record.
func (s *Store) GetTrail(ctx context.Context, trackID string, since time.Duration) ([]models.TrailPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var trail models.Trail
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trailKey(trackID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &trail)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trail %s: %w", trackID, err)
	}

	if since <= 0 {
		return trail.Points, nil
	}
	cutoff := time.Now().UTC().Add(-since)
	// Points are stored oldest first, so scan for the first recent one.
	for i, p := range trail.Points {
		if !p.Timestamp.Before(cutoff) {
			return trail.Points[i:], nil
		}
	}
	return []models.TrailPoint{}, nil
}

// DeleteStaleBefore removes position records last updated before posCutoff
// and trail records last updated before trailCutoff, returning how many of
// each were deleted. Candidates are collected under a read snapshot first,
// matching Badger's iterator constraints, then each one is re-read under its
// track's lock before deletion. A record freshly updated during the sweep
// survives until the next one.
func (s *Store) DeleteStaleBefore(ctx context.Context, posCutoff, trailCutoff time.Time) (models.CleanupResult, error) {
	var result models.CleanupResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	stalePositions, err := s.collectStale(positionKeyPrefix, positionLastSeen)
	if err != nil {
		return result, fmt.Errorf("scan stale positions: %w", err)
	}
	staleTrails, err := s.collectStale(trailKeyPrefix, trailLastSeen)
	if err != nil {
		return result, fmt.Errorf("scan stale trails: %w", err)
	}

	result.DeletedLocations, err = s.deleteStale(stalePositions, posCutoff, positionLastSeen)
	if err != nil {
		return result, err
	}
	result.DeletedPaths, err = s.deleteStale(staleTrails, trailCutoff, trailLastSeen)
	if err != nil {
		return result, err
	}
	return result, nil
}

func positionLastSeen(val []byte) (time.Time, error) {
	var pos models.Position
	if err := json.Unmarshal(val, &pos); err != nil {
		return time.Time{}, err
	}
	return pos.Timestamp, nil
}

func trailLastSeen(val []byte) (time.Time, error) {
	var trail models.Trail
	if err := json.Unmarshal(val, &trail); err != nil {
		return time.Time{}, err
	}
	return trail.LastUpdated, nil
}

// trackIDFromKey strips the record-type prefix off a storage key.
func trackIDFromKey(key string) string {
	if id, ok := strings.CutPrefix(key, positionKeyPrefix); ok {
		return id
	}
	return strings.TrimPrefix(key, trailKeyPrefix)
}

type staleEntry struct {
	key      string
	lastSeen time.Time
}

// collectStale scans a key prefix and returns every entry with its last-seen
// timestamp. Filtering against the cutoff happens at delete time.
func (s *Store) collectStale(prefix string, lastSeen func([]byte) (time.Time, error)) ([]staleEntry, error) {
	var entries []staleEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			if err := item.Value(func(val []byte) error {
				ts, err := lastSeen(val)
				if err != nil {
					// Corrupt record; log and skip rather than abort the sweep.
					logging.Warn().Str("key", key).Err(err).Msg("skipping unreadable record during cleanup")
					return nil
				}
				entries = append(entries, staleEntry{key: key, lastSeen: ts})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// deleteStale deletes each candidate record under its track's shard lock.
// The record is re-read inside the write transaction and kept if its
// timestamp moved past the cutoff since the scan snapshot, so a concurrent
// upsert is never lost to the sweep. Holding the shard lock also keeps the
// delete from conflicting with an in-flight append on the same track.
func (s *Store) deleteStale(entries []staleEntry, cutoff time.Time, lastSeen func([]byte) (time.Time, error)) (int, error) {
	deleted := 0
	for _, e := range entries {
		if !e.lastSeen.Before(cutoff) {
			continue
		}

		removed := false
		unlock := s.lockTrack(trackIDFromKey(e.key))
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(e.key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var ts time.Time
			if err := item.Value(func(val []byte) error {
				var derr error
				ts, derr = lastSeen(val)
				return derr
			}); err != nil {
				logging.Warn().Str("key", e.key).Err(err).Msg("skipping unreadable record during cleanup")
				return nil
			}
			if !ts.Before(cutoff) {
				// Updated since the scan; it survives this sweep.
				return nil
			}
			if err := txn.Delete([]byte(e.key)); err != nil {
				return err
			}
			removed = true
			return nil
		})
		unlock()
		if err != nil {
			return deleted, fmt.Errorf("delete stale record %s: %w", e.key, err)
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}

// Stats counts tracks and trails by scanning both prefixes.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(positionKeyPrefix)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			stats.TotalTracks++
			var pos models.Position
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &pos)
			})
			if err == nil && pos.IsActive {
				stats.ActiveTracks++
			}
		}
		it.Close()

		trailOpts := badger.DefaultIteratorOptions
		trailOpts.Prefix = []byte(trailKeyPrefix)
		// Counting only; skip value fetches.
		trailOpts.PrefetchValues = false
		tit := txn.NewIterator(trailOpts)
		defer tit.Close()
		for tit.Rewind(); tit.Valid(); tit.Next() {
			stats.TotalTrails++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("collect stats: %w", err)
	}
	stats.InactiveTracks = stats.TotalTracks - stats.ActiveTracks
	return stats, nil
}
