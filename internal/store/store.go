// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package store persists positions and trails in BadgerDB.
//
// Each track identifier owns two records: a position record under
// "position:{trackID}" holding the latest location, and a trail record under
// "trail:{trackID}" holding the bounded point history. Values are JSON.
//
// Operations on the same track identifier serialize through a sharded mutex
// so trail read-modify-write cycles cannot interleave; operations on
// different track identifiers proceed in parallel (shard collisions aside).
package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/trackwire/internal/logging"
	"github.com/tomtom215/trackwire/internal/retention"
)

// Key prefixes for BadgerDB storage.
const (
	positionKeyPrefix = "position:"
	trailKeyPrefix    = "trail:"
)

// lockShards is the number of per-track mutex shards. Power of two so the
// FNV hash distributes evenly with a mask.
const lockShards = 64

// ErrNotFound is returned when no record exists for a track identifier.
var ErrNotFound = errors.New("track not found")

// Store is a BadgerDB-backed position and trail store.
type Store struct {
	db     *badger.DB
	policy retention.Policy
	locks  [lockShards]sync.Mutex
}

// Options configures a Store.
type Options struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence. Used by tests.
	InMemory bool

	// Policy is the retention policy applied on append and bulk delete.
	Policy retention.Policy
}

// Open opens or creates the store at the configured path.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	// Badger's own logger is chatty at INFO; silence it.
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}

	policy := opts.Policy
	if policy.MaxTrailPoints == 0 && policy.TrailWindow == 0 {
		policy = retention.Default()
	}

	logging.Info().Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("store opened")
	return &Store{db: db, policy: policy}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is usable. Badger is embedded, so this is a cheap
// read transaction rather than a network round trip.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Policy returns the retention policy the store was opened with.
func (s *Store) Policy() retention.Policy {
	return s.policy
}

// lockTrack acquires the mutex shard for a track identifier. The caller must
// call the returned unlock function.
func (s *Store) lockTrack(trackID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trackID))
	shard := &s.locks[h.Sum32()&(lockShards-1)]
	shard.Lock()
	return shard.Unlock
}

func positionKey(trackID string) []byte {
	return []byte(positionKeyPrefix + trackID)
}

func trailKey(trackID string) []byte {
	return []byte(trailKeyPrefix + trackID)
}
