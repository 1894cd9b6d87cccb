// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/trackwire/internal/models"
)

// UpsertPosition writes the latest position for a track, creating the record
// if none exists. An upsert always marks the track active.
func (s *Store) UpsertPosition(ctx context.Context, pos *models.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockTrack(pos.TrackID)
	defer unlock()

	pos.IsActive = true
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", pos.TrackID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(positionKey(pos.TrackID), data)
	})
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.TrackID, err)
	}
	return nil
}

// GetPosition returns the latest position for a track, or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, trackID string) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pos models.Position
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(positionKey(trackID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pos)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", trackID, err)
	}
	return &pos, nil
}

// DeactivatePosition clears the active flag on a track's position without
// touching its trail. Returns ErrNotFound when the track has no position.
func (s *Store) DeactivatePosition(ctx context.Context, trackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockTrack(trackID)
	defer unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(positionKey(trackID))
		if err != nil {
			return err
		}
		var pos models.Position
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pos)
		}); err != nil {
			return err
		}
		if !pos.IsActive {
			return nil
		}
		pos.IsActive = false
		data, err := json.Marshal(&pos)
		if err != nil {
			return err
		}
		return txn.Set(positionKey(trackID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deactivate position %s: %w", trackID, err)
	}
	return nil
}
