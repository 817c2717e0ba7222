package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
	"github.com/ternarybob/messis/internal/traversal"
)

// Service runs Phase 1: one traversal per search unit, bounded concurrency,
// with all discovered identifiers merged into one deduplicated set and
// persisted to the checkpoint store before the run returns.
//
// Traversals are independent conversations; only the merge of their results
// is shared state. Partial results from failed traversals are merged too.
type Service struct {
	engine  *traversal.Engine
	storage interfaces.CheckpointStorage
	config  common.DiscoveryConfig
	logger  arbor.ILogger
}

// NewService creates the discovery service.
func NewService(engine *traversal.Engine, storage interfaces.CheckpointStorage, config common.DiscoveryConfig, logger arbor.ILogger) *Service {
	return &Service{
		engine:  engine,
		storage: storage,
		config:  config,
		logger:  logger,
	}
}

// Run traverses the whole search space and returns the run summary. It
// fails with models.ErrNoTraversalSucceeded when not a single unit
// completed; anything already discovered is still persisted first.
func (s *Service) Run(ctx context.Context) (*models.DiscoverySummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	workers := s.config.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(s.config.SearchSpace) {
		workers = len(s.config.SearchSpace)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("search_units", len(s.config.SearchSpace)).
		Int("workers", workers).
		Msg("Starting discovery")

	var (
		mu          sync.Mutex
		merged      = models.IdentifierSet{}
		unitsDone   int
		unitsFailed int
	)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, term := range s.config.SearchSpace {
		wg.Add(1)
		go func(term string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				unitsFailed++
				mu.Unlock()
				return
			}

			result := s.engine.Run(ctx, term)

			mu.Lock()
			defer mu.Unlock()
			for _, id := range result.Identifiers {
				merged.Add(id)
			}
			if result.Err != nil {
				unitsFailed++
			} else {
				unitsDone++
			}
		}(term)
	}

	wg.Wait()

	// Persist before reporting: a summary for identifiers that never hit
	// the checkpoint store would be a lie to the harvest phase.
	if err := s.storage.RecordDiscovered(ctx, merged.Sorted()); err != nil {
		return nil, err
	}

	summary := &models.DiscoverySummary{
		RunID:       runID,
		Discovered:  len(merged),
		UnitsDone:   unitsDone,
		UnitsFailed: unitsFailed,
		Duration:    time.Since(start),
	}

	if unitsDone == 0 {
		s.logger.Error().
			Str("run_id", runID).
			Int("units_failed", unitsFailed).
			Msg("Every search unit failed")
		return summary, models.ErrNoTraversalSucceeded
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("discovered", summary.Discovered).
		Int("units_done", unitsDone).
		Int("units_failed", unitsFailed).
		Dur("duration", summary.Duration).
		Msg("Discovery complete")

	return summary, nil
}
