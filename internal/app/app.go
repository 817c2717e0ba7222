package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/messis/internal/catalog"
	"github.com/ternarybob/messis/internal/common"
	"github.com/ternarybob/messis/internal/discovery"
	"github.com/ternarybob/messis/internal/harvest"
	"github.com/ternarybob/messis/internal/interfaces"
	"github.com/ternarybob/messis/internal/postback"
	"github.com/ternarybob/messis/internal/storage/badger"
	"github.com/ternarybob/messis/internal/storage/csvstore"
	"github.com/ternarybob/messis/internal/traversal"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Checkpoint interfaces.CheckpointStorage
	Records    interfaces.RecordStore

	Parser  interfaces.PageParser
	Limiter *rate.Limiter

	Engine           *traversal.Engine
	DiscoveryService *discovery.Service
	HarvestService   *harvest.Service
}

// New wires the full pipeline from configuration: storage, parser, rate
// limiter, traversal engine and the two phase services.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint storage: %w", err)
	}
	checkpoint := badger.NewCheckpointStorage(db, logger)

	records, err := csvstore.Open(config.Storage.Output, logger)
	if err != nil {
		checkpoint.Close()
		return nil, fmt.Errorf("failed to open output store: %w", err)
	}

	parser := catalog.NewParser(config.Catalog)
	limiter := postback.NewLimiter(config.HTTP)
	engine := traversal.NewEngine(config, parser, limiter, logger)

	return &App{
		Config:           config,
		Logger:           logger,
		Checkpoint:       checkpoint,
		Records:          records,
		Parser:           parser,
		Limiter:          limiter,
		Engine:           engine,
		DiscoveryService: discovery.NewService(engine, checkpoint, config.Discovery, logger),
		HarvestService:   harvest.NewService(config, parser, limiter, checkpoint, records, logger),
	}, nil
}

// Close releases storage resources. Safe to call once after any outcome.
func (a *App) Close() error {
	var firstErr error
	if a.Records != nil {
		if err := a.Records.Close(); err != nil {
			firstErr = err
			a.Logger.Warn().Err(err).Msg("Failed to close output store")
		}
	}
	if a.Checkpoint != nil {
		if err := a.Checkpoint.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			a.Logger.Warn().Err(err).Msg("Failed to close checkpoint storage")
		}
	}
	return firstErr
}
