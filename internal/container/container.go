package container

import (
	"context"
	"fmt"

	"pmuplace/adapters/excel"
	"pmuplace/adapters/memory"
	"pmuplace/adapters/postgres"
	"pmuplace/adapters/regression"
	"pmuplace/app"
	"pmuplace/internal"
	"pmuplace/internal/api"
	"pmuplace/internal/config"
	"pmuplace/internal/errors"
	"pmuplace/internal/migration"
	"pmuplace/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Log    *internal.Logger

	// Infrastructure, nil without DATABASE_URL
	DB *sqlx.DB

	Reader  ports.DatasetReader
	Oracles ports.OracleFactory

	// Runs reads stored runs: postgres when connected, the memory store otherwise
	Runs  ports.RunRepository
	Store *memory.RunStore
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	store := memory.NewRunStore()
	return &Container{
		Config:  cfg,
		Log:     logger,
		Reader:  excel.NewDataReader().WithSheet(cfg.Files.Sheet),
		Oracles: regression.RecordingFactory(regression.WithMaxCondition(cfg.Search.MaxCondition)),
		Runs:    store,
		Store:   store,
	}, nil
}

// Connect opens the configured database, if any, and initializes it
func (c *Container) Connect(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		c.Log.Debug("no DATABASE_URL, traces stay in files and memory")
		return nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	if err != nil {
		return errors.DatabaseError("failed to connect to database", err)
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return err
	}
	return nil
}

// InitWithDatabase runs migrations and switches run storage to postgres
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.DatabaseError("failed to ping database", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	c.DB = db
	c.Runs = postgres.NewTraceRepository(db)
	c.Log.Info("connected to database, migrations applied")
	return nil
}

// FileSinks returns the sinks of a file run: the configured table format,
// plus postgres when connected
func (c *Container) FileSinks() []ports.TraceSink {
	opts := excel.Options{MetaData: c.Config.Files.MetaData, Verbose: c.Config.Files.Verbose}
	var sink ports.TraceSink
	if c.Config.Files.Format == config.FormatXLSX {
		sink = excel.NewXLSXSink(c.Config.Files.OutputDir, opts)
	} else {
		sink = excel.NewCSVSink(c.Config.Files.OutputDir, opts)
	}
	sinks := []ports.TraceSink{sink}
	if c.DB != nil {
		sinks = append(sinks, postgres.NewTraceRepository(c.DB))
	}
	return sinks
}

// NewSink returns a fresh sink for one API run
func (c *Container) NewSink() ports.TraceSink {
	if c.DB == nil {
		return c.Store.Sink()
	}
	return app.MultiSink{c.Store.Sink(), postgres.NewTraceRepository(c.DB)}
}

// PlacementService builds the service for file runs
func (c *Container) PlacementService() *app.PlacementService {
	return app.NewPlacementService(c.Reader, c.Oracles, c.FileSinks(), c.Log)
}

// RunRequest returns the request template shared by every file of a run.
// The degree is filled in per run.
func (c *Container) RunRequest() app.RunRequest {
	return app.RunRequest{
		Config:     c.Config.Search.PlacementConfig(0),
		Mode:       c.Config.Run.Mode,
		Retries:    c.Config.Run.Retries,
		RetryDelay: c.Config.Run.RetryDelay,
	}
}

// SearchHandler builds the HTTP handler
func (c *Container) SearchHandler() *api.SearchHandler {
	defaults := c.Config.Search.PlacementConfig(c.Config.Search.Degrees[0])
	return api.NewSearchHandler(c.Config.Files.InputDir, defaults, c.Reader, c.Oracles, c.Runs, c.NewSink, c.Log)
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// RunAll discovers the configured datasets and searches each at every
// configured degree
func (c *Container) RunAll(ctx context.Context) ([]*app.RunResult, error) {
	paths, err := app.DiscoverDatasets(c.Config.Files.InputDir, c.Config.Files.Models)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("no .csv or .xlsx datasets in %s", c.Config.Files.InputDir))
	}
	c.Log.Info("found %d dataset(s) in %s", len(paths), c.Config.Files.InputDir)
	return c.PlacementService().RunAll(ctx, paths, c.RunRequest(), c.Config.Search.Degrees)
}
