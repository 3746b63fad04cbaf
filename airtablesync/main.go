package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/natserract/sfsync/pkg/config"
	"github.com/natserract/sfsync/pkg/crmsync"
	"github.com/natserract/sfsync/pkg/crmsync/schema/postgres"
	"github.com/natserract/sfsync/pkg/mapping"
	"github.com/natserract/sfsync/pkg/salesforce"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var (
	mappingFile      string
	dryRun           bool
	guardEmptySource bool
	skipSchemaCheck  bool
	verbose          bool
)

func main() {
	app := &cli.App{
		Name:  "airtablesync",
		Usage: "Mirror Salesforce objects into Airtable tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "mapping,m",
				Value:       "",
				Usage:       "Load the object mapping from `FILE` (defaults to MAPPING_FILE or mapping.yaml)",
				Destination: &mappingFile,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Compute and log the changes without writing to Airtable",
				Destination: &dryRun,
			},
			&cli.BoolFlag{
				Name:        "guard-empty-source",
				Usage:       "Fail instead of emptying a table when its query returns no records",
				Destination: &guardEmptySource,
			},
			&cli.BoolFlag{
				Name:        "skip-schema-check",
				Usage:       "Do not describe the Salesforce objects before syncing",
				Destination: &skipSchemaCheck,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "Show verbose output",
				Destination: &verbose,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(*cli.Context) error {
	logger, err := newLogger(verbose)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("Failed to initialize logger: %v", err), 1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return cli.NewExitError(fmt.Sprintf("Failed to load config: %v", err), 2)
	}

	if mappingFile == "" {
		mappingFile = cfg.MappingFile
	}
	// The mapping is validated before any network call
	syncMapping, err := mapping.LoadFile(mappingFile)
	if err != nil {
		logger.Error("Failed to load mapping", zap.String("file", mappingFile), zap.Error(err))
		return cli.NewExitError(fmt.Sprintf("Failed to load mapping %s: %v", mappingFile, err), 3)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := salesforce.NewSalesforceWithLogger(cfg, logger)
	if _, err := client.Authenticate(ctx); err != nil {
		return cli.NewExitError(fmt.Sprintf("Failed to log in to Salesforce: %v", err), 4)
	}

	base := airtable.NewAirtableWithLogger(cfg.AirtableAPIURL, cfg.AirtableAPIKey, syncMapping.BaseID, logger)

	// The run ledger is optional, a sync without DB_HOST records nothing
	var ledger crmsync.RunLedger
	if cfg.Ledger.Enabled() {
		db, err := postgres.New(ctx, postgres.NewConfig(cfg.Ledger), logger)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return cli.NewExitError(fmt.Sprintf("Failed to connect to database: %v", err), 5)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			logger.Error("Failed to initialize ledger schema", zap.Error(err))
			return cli.NewExitError(fmt.Sprintf("Failed to initialize ledger schema: %v", err), 5)
		}
		ledger = postgres.NewRunLedger(db, logger)
		logger.Info("Database connection established")
	}

	syncSvc := crmsync.NewSyncService(client, base, syncMapping, ledger, crmsync.Options{
		DryRun:           dryRun,
		GuardEmptySource: guardEmptySource,
		SkipSchemaCheck:  skipSchemaCheck,
	}, logger)

	summary, err := syncSvc.SyncAll(ctx)
	printSummary(summary)
	if err != nil {
		logger.Error("Failed to sync", zap.Error(err))
		return cli.NewExitError(fmt.Sprintf("Error: %v", err), 10)
	}

	metrics := syncSvc.Metrics().Snapshot()
	logger.Info("Successfully completed sync",
		zap.Int("objects_succeeded", metrics.ObjectsSucceeded),
		zap.Int("records_fetched", metrics.RecordsFetched),
		zap.Int("records_created", metrics.RecordsCreated),
		zap.Int("records_updated", metrics.RecordsUpdated),
		zap.Int("records_deleted", metrics.RecordsDeleted),
		zap.Int("records_applied", metrics.TotalApplied()),
		zap.Int("chunks_succeeded", metrics.ChunksSucceeded))

	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printSummary(summary *crmsync.RunSummary) {
	if summary == nil || len(summary.Objects) == 0 {
		return
	}
	if summary.DryRun {
		fmt.Println("Dry run, nothing was written. Planned changes:")
	} else {
		fmt.Println("Sync Summary:")
	}
	for _, o := range summary.Objects {
		fmt.Printf("  %s -> %s: %d fetched, %d created, %d updated, %d deleted\n",
			o.Object, o.Table, o.Fetched, o.Created, o.Updated, o.Deleted)
	}
	created, updated, deleted := summary.Totals()
	fmt.Printf("  Total: %d created, %d updated, %d deleted in %s\n", created, updated, deleted, summary.Duration)
}
