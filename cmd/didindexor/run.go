package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/DIDIndexor/internal/checkpoint"
	"github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/config"
	"github.com/goran-ethernal/DIDIndexor/internal/db"
	ifetcher "github.com/goran-ethernal/DIDIndexor/internal/fetcher"
	"github.com/goran-ethernal/DIDIndexor/internal/indexer"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/metrics"
	"github.com/goran-ethernal/DIDIndexor/internal/migrations"
	"github.com/goran-ethernal/DIDIndexor/internal/projection"
	"github.com/goran-ethernal/DIDIndexor/internal/reorg"
	"github.com/goran-ethernal/DIDIndexor/internal/rpc"
	"github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/goran-ethernal/DIDIndexor/pkg/api"
	pkgindexer "github.com/goran-ethernal/DIDIndexor/pkg/indexer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewComponentLoggerFromConfig(common.ComponentIndexer, cfg.Logging)

	finality, err := types.ParseBlockFinality(cfg.Chain.Finality)
	if err != nil {
		return fmt.Errorf("invalid finality: %w", err)
	}

	log.Info("Connecting to Ethereum node...")
	ethClient, err := rpc.NewClient(ctx, cfg.Chain,
		logger.NewComponentLoggerFromConfig(common.ComponentChainClient, cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.Chain.RPCURL)

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(cfg.DB.Path); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	dbMaintenance := db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		database,
		cfg.Maintenance,
		logger.NewComponentLoggerFromConfig(common.ComponentMaintenance, cfg.Logging),
	)

	store := projection.NewStore(database,
		logger.NewComponentLoggerFromConfig(common.ComponentProjectionStore, cfg.Logging))

	ix, err := indexer.New(
		cfg.Indexer,
		database,
		ifetcher.NewLogFetcher(ifetcher.LogFetcherConfig{
			Finality:     finality,
			FinalizedLag: cfg.Chain.FinalizedLag,
			Addresses:    cfg.Indexer.ContractAddresses(),
		}, logger.NewComponentLoggerFromConfig(common.ComponentLogFetcher, cfg.Logging), ethClient),
		reorg.NewReorgDetector(database, ethClient,
			logger.NewComponentLoggerFromConfig(common.ComponentReorgDetector, cfg.Logging)),
		store,
		checkpoint.NewManager(database,
			logger.NewComponentLoggerFromConfig(common.ComponentCheckpoint, cfg.Logging)),
		dbMaintenance,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	apiEnabled := cfg.API != nil && cfg.API.Enabled
	if paused && !apiEnabled {
		return fmt.Errorf("--paused requires the api to be enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(*cfg.Metrics,
			logger.NewComponentLoggerFromConfig(common.ComponentIndexer, cfg.Logging))
		g.Go(func() error { return metricsServer.Run(gctx) })
	}

	if err := dbMaintenance.Start(gctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := dbMaintenance.Stop(); err != nil {
			log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()

	if apiEnabled {
		apiServer := api.NewServer(cfg.API, ix, store,
			logger.NewComponentLoggerFromConfig(common.ComponentAPI, cfg.Logging))
		g.Go(func() error { return apiServer.Start(gctx) })
	}

	if paused {
		log.Info("Indexer paused; start it with POST /api/v1/indexer/start")
	} else {
		health := ix.Start(gctx)
		log.Infow("Starting DIDIndexor...",
			"runId", health.RunID,
			"lastProcessedBlock", health.LastProcessedBlock,
			"contracts", cfg.Indexer.Contracts,
		)
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-ix.Done():
			// Without the API nothing can restart a failed indexer.
			if health := ix.Health(); !apiEnabled && health.Status == pkgindexer.StateFailed {
				return fmt.Errorf("indexer failed: %s", health.LastError)
			}
			<-gctx.Done()
		}
		health := ix.Stop()
		log.Infow("Indexer stopped", "status", health.Status, "lastProcessedBlock", health.LastProcessedBlock)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("DIDIndexor stopped successfully")
	return nil
}
