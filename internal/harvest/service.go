package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/models"
	"github.com/ternarybob/messis/internal/postback"
	"github.com/ternarybob/messis/internal/traversal"
)

// Service runs Phase 2: pull every discovered identifier's detail record
// through its own postback conversation, with bounded concurrency and
// resume-by-diff against the output store.
//
// A single writer goroutine owns the output store. Workers fetch and parse;
// the writer appends the row and only then marks the identifier harvested,
// so a crash can at worst leave a duplicate row, which the startup diff
// absorbs on the next run.
type Service struct {
	catalog    common.CatalogConfig
	http       common.HTTPConfig
	config     common.HarvestConfig
	parser     interfaces.PageParser
	limiter    *rate.Limiter
	checkpoint interfaces.CheckpointStorage
	records    interfaces.RecordStore
	retry      *traversal.RetryPolicy
	logger     arbor.ILogger
}

// NewService creates the harvest service.
func NewService(config *common.Config, parser interfaces.PageParser, limiter *rate.Limiter, checkpoint interfaces.CheckpointStorage, records interfaces.RecordStore, logger arbor.ILogger) *Service {
	return &Service{
		catalog:    config.Catalog,
		http:       config.HTTP,
		config:     config.Harvest,
		parser:     parser,
		limiter:    limiter,
		checkpoint: checkpoint,
		records:    records,
		retry:      traversal.RetryPolicyFromConfig(config.Harvest),
		logger:     logger,
	}
}

type outcome struct {
	id     models.Identifier
	record models.Record
	err    error
}

// Run harvests every discovered identifier that is not already present in
// the output store. Identifiers that exhaust their retries are recorded in
// the summary as unharvestable, not treated as run failure.
func (s *Service) Run(ctx context.Context) (*models.HarvestSummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	// Derived context so an aborting writer releases blocked workers.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	discovered, err := s.checkpoint.LoadDiscovered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load discovered identifiers: %w", err)
	}
	if len(discovered) == 0 {
		return nil, fmt.Errorf("nothing discovered yet, run discovery first")
	}

	// The output store is the source of truth for what is done: a row is
	// appended before the checkpoint mark, so the store can only be ahead
	// of the checkpoint, never behind.
	done, err := s.records.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate output store: %w", err)
	}

	harvested, err := s.checkpoint.LoadHarvested(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load harvested checkpoint: %w", err)
	}
	for _, id := range harvested.Sorted() {
		if !discovered.Contains(id) {
			return nil, fmt.Errorf("checkpoint inconsistent: %s marked harvested but never discovered", id)
		}
		if !done.Contains(id) {
			// Should be impossible given the append-then-mark order;
			// refetching is the safe recovery.
			s.logger.Warn().
				Str("identifier", string(id)).
				Msg("Harvested mark without output row, refetching")
		}
	}

	pending := make([]models.Identifier, 0, len(discovered))
	for _, id := range discovered.Sorted() {
		if done.Contains(id) {
			continue
		}
		pending = append(pending, id)
	}

	summary := &models.HarvestSummary{
		RunID:       runID,
		Discovered:  len(discovered),
		AlreadyDone: len(discovered) - len(pending),
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("discovered", summary.Discovered).
		Int("already_done", summary.AlreadyDone).
		Int("pending", len(pending)).
		Msg("Starting harvest")

	if len(pending) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	workers := s.config.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan models.Identifier)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				rec, err := s.harvestOne(ctx, id)
				select {
				case results <- outcome{id: id, record: rec, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range pending {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single writer: append, then mark. Never the other way around.
	var writeErr error
	for res := range results {
		if ctx.Err() != nil {
			break
		}
		if res.err != nil {
			// A sequencing violation is a bug in this program, not a bad
			// identifier; aborting beats quietly skipping records.
			if errors.Is(res.err, models.ErrMissingToken) || errors.Is(res.err, models.ErrStaleToken) {
				writeErr = fmt.Errorf("postback sequencing violation on %s: %w", res.id, res.err)
				break
			}
			s.logger.Warn().
				Str("identifier", string(res.id)).
				Err(res.err).
				Msg("Identifier unharvestable, skipping")
			summary.Unharvestable = append(summary.Unharvestable, res.id)
			continue
		}

		if err := s.records.Append(res.record); err != nil {
			writeErr = fmt.Errorf("failed to append record %s: %w", res.id, err)
			break
		}
		if err := s.checkpoint.RecordHarvested(ctx, res.id); err != nil {
			writeErr = fmt.Errorf("failed to checkpoint record %s: %w", res.id, err)
			break
		}
		summary.Harvested++
	}

	summary.Duration = time.Since(start)

	if writeErr != nil {
		return summary, writeErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("harvested", summary.Harvested).
		Int("unharvestable", len(summary.Unharvestable)).
		Dur("duration", summary.Duration).
		Msg("Harvest complete")

	return summary, nil
}

// harvestOne replays the full conversation for one identifier: landing
// page, identifier lookup, record selection, detail parse. Each retry
// attempt starts a fresh session; resuming a half-done conversation after
// a failure is not worth reasoning about.
func (s *Service) harvestOne(ctx context.Context, id models.Identifier) (models.Record, error) {
	var record models.Record

	err := s.retry.Execute(ctx, s.logger, func() error {
		rec, err := s.fetchDetail(ctx, id)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})

	return record, err
}

func (s *Service) fetchDetail(ctx context.Context, id models.Identifier) (models.Record, error) {
	session, err := postback.NewSession(s.http, s.limiter)
	if err != nil {
		return models.Record{}, err
	}
	builder := postback.NewBuilder(s.catalog)

	var seq uint64
	extract := func(body []byte) (models.StateToken, error) {
		token, err := s.parser.ExtractState(body)
		if err != nil {
			return models.StateToken{}, err
		}
		seq++
		return token.WithSeq(seq), nil
	}

	body, err := session.GetPage(ctx, s.catalog.BaseURL)
	if err != nil {
		return models.Record{}, err
	}
	token, err := extract(body)
	if err != nil {
		return models.Record{}, err
	}

	form, err := builder.Build(models.LookupAction(id), token)
	if err != nil {
		return models.Record{}, err
	}
	body, err = session.PostForm(ctx, s.catalog.BaseURL, form)
	if err != nil {
		return models.Record{}, err
	}
	token, err = extract(body)
	if err != nil {
		return models.Record{}, err
	}

	target, ok := s.parser.SelectTarget(body)
	if !ok {
		return models.Record{}, fmt.Errorf("no record link for identifier %s", id)
	}

	form, err = builder.Build(models.SelectRecordAction(target), token)
	if err != nil {
		return models.Record{}, err
	}
	body, err = session.PostForm(ctx, s.catalog.DetailsURL, form)
	if err != nil {
		return models.Record{}, err
	}

	return s.parser.DetailRecord(body, id)
}
