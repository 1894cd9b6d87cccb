// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package retention holds the pure retention rules for positions and trails.
//
// Two independent bounds apply to a trail: a count bound (at most
// MaxTrailPoints samples) and an age bound (samples no older than
// TrailWindow). Whichever is tighter wins. Whole records are purged once
// untouched for StaleAfter, independent of point-level trimming.
//
// The same Policy is applied on every write (lazy trim) and by the janitor
// (active trim) so the two pruning paths cannot diverge.
package retention

import (
	"time"

	"github.com/tomtom215/trackwire/internal/models"
)

// Defaults for the retention policy.
const (
	DefaultMaxTrailPoints = 1000
	DefaultTrailWindow    = 24 * time.Hour
	DefaultStaleAfter     = 24 * time.Hour
)

// Policy bounds per-track history and ages out abandoned tracks.
// The zero value is not usable; construct with Default or from config.
type Policy struct {
	// MaxTrailPoints caps the number of samples kept per trail.
	MaxTrailPoints int

	// TrailWindow is the maximum age of an individual trail point.
	TrailWindow time.Duration

	// StaleAfter is how long a position or trail record may go untouched
	// before the janitor purges it wholesale.
	StaleAfter time.Duration
}

// Default returns the baseline policy: 1000 points, 24h window, 24h staleness.
func Default() Policy {
	return Policy{
		MaxTrailPoints: DefaultMaxTrailPoints,
		TrailWindow:    DefaultTrailWindow,
		StaleAfter:     DefaultStaleAfter,
	}
}

// TrimPoints returns the subsequence of points that survive both bounds at
// the given instant: the newest MaxTrailPoints samples, excluding any older
// than TrailWindow. Input order (oldest first) is preserved; the input slice
// is not modified.
func (p Policy) TrimPoints(points []models.TrailPoint, now time.Time) []models.TrailPoint {
	// Age bound first: points arrive in timestamp order, so the survivors
	// are a suffix of the input.
	cutoff := now.Add(-p.TrailWindow)
	start := 0
	for start < len(points) && !points[start].Timestamp.After(cutoff) {
		start++
	}
	survivors := points[start:]

	// Count bound: keep the newest MaxTrailPoints.
	if p.MaxTrailPoints > 0 && len(survivors) > p.MaxTrailPoints {
		survivors = survivors[len(survivors)-p.MaxTrailPoints:]
	}

	out := make([]models.TrailPoint, len(survivors))
	copy(out, survivors)
	return out
}

// StaleCutoff returns the instant before which untouched records are purged.
func (p Policy) StaleCutoff(now time.Time) time.Time {
	return now.Add(-p.StaleAfter)
}

// IsStale reports whether a record last touched at the given time should be
// purged wholesale.
func (p Policy) IsStale(lastTouched, now time.Time) bool {
	return lastTouched.Before(p.StaleCutoff(now))
}
