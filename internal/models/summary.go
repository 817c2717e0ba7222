package models

import "time"

// TraversalResult is the outcome of one search unit's traversal. Partial
// results from a failed traversal are retained, never discarded.
type TraversalResult struct {
	Term        string
	Phase       TraversalPhase
	Pages       int
	Identifiers []Identifier
	Err         error
	Duration    time.Duration
}

// DiscoverySummary reports a completed Phase 1 run.
type DiscoverySummary struct {
	RunID       string
	Discovered  int
	UnitsDone   int
	UnitsFailed int
	Duration    time.Duration
}

// HarvestSummary reports a completed Phase 2 run. Unharvestable identifiers
// exhausted their retries and were skipped; they are surfaced here rather
// than silently dropped.
type HarvestSummary struct {
	RunID         string
	Discovered    int
	AlreadyDone   int
	Harvested     int
	Unharvestable []Identifier
	Duration      time.Duration
}
