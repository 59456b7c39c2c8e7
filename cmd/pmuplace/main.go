package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"pmuplace/adapters/report"
	"pmuplace/app"
	"pmuplace/domain/core"
	"pmuplace/domain/placement"
	"pmuplace/internal"
	"pmuplace/internal/api"
	"pmuplace/internal/config"
	"pmuplace/internal/container"
	"pmuplace/internal/migration"
	"pmuplace/internal/testkit"
	"pmuplace/ports"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pmuplace",
		Short: "Parsimonious measurement placement by stepwise polynomial regression",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML run file overlaying the PMU_* environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE (default LOG_LEVEL or INFO)")

	rootCmd.AddCommand(
		newRunCmd(),
		newStepCmd(),
		newDemoCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newReportCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func logger() *internal.Logger {
	if logLevel != "" {
		return internal.NewLogger(internal.ParseLogLevel(logLevel))
	}
	return internal.DefaultLogger
}

// searchFlags are the per-command overrides of the search configuration
type searchFlags struct {
	target       string
	maxPMUs      int
	excluded     []string
	degrees      []int
	parsimonious string
	workers      int
	mode         string
	format       string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.target, "target", "", "Target column (default PMU_TARGET)")
	cmd.Flags().IntVar(&f.maxPMUs, "max", 0, "Maximum placements (default PMU_MAX_PLACEMENTS)")
	cmd.Flags().StringSliceVar(&f.excluded, "exclude", nil, "Candidate columns never placed")
	cmd.Flags().IntSliceVar(&f.degrees, "degree", nil, "Polynomial degree(s) (default PMU_DEGREES)")
	cmd.Flags().StringVar(&f.parsimonious, "parsimonious", "", "true|false (default PMU_PARSIMONIOUS)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent fits per selection step (default PMU_WORKERS)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "batch|incremental|failover (default PMU_MODE)")
	cmd.Flags().StringVar(&f.format, "format", "", "csv|xlsx (default PMU_OUTPUT_FORMAT)")
}

func (f *searchFlags) apply(cfg *config.Config) error {
	if f.target != "" {
		cfg.Search.Target = f.target
	}
	if f.maxPMUs > 0 {
		cfg.Search.MaxPlacements = f.maxPMUs
		cfg.Search.SetMax = true
	}
	if f.excluded != nil {
		cfg.Search.Excluded = f.excluded
	}
	if f.degrees != nil {
		cfg.Search.Degrees = f.degrees
	}
	if f.parsimonious != "" {
		cfg.Search.Parsimonious = strings.EqualFold(f.parsimonious, "true")
	}
	if f.workers > 0 {
		cfg.Search.Workers = f.workers
	}
	if f.mode != "" {
		cfg.Run.Mode = strings.ToLower(f.mode)
	}
	if f.format != "" {
		cfg.Files.Format = strings.ToLower(f.format)
	}
	return cfg.Validate()
}

func newRunCmd() *cobra.Command {
	var flags searchFlags
	var inputDir, outputDir string
	var models []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search every dataset of the input directory",
		Long: `Search every .csv and .xlsx dataset of the input directory at every
configured degree and write the Output, MetaData and VerboseOutput tables.

Example: pmuplace run --input inputFolder/ --degree 2,3 --exclude X1 --mode failover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if inputDir != "" {
				cfg.Files.InputDir = inputDir
			}
			if outputDir != "" {
				cfg.Files.OutputDir = outputDir
			}
			if models != nil {
				cfg.Files.Models = models
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}

			results, err := c.RunAll(cmd.Context())
			for _, r := range results {
				printSummary(cmd, r)
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&inputDir, "input", "", "Input directory (default PMU_INPUT_DIR)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (default PMU_OUTPUT_DIR)")
	cmd.Flags().StringSliceVar(&models, "models", nil, "Only datasets whose name contains one of these")
	return cmd
}

func newStepCmd() *cobra.Command {
	var flags searchFlags
	var outputDir string

	cmd := &cobra.Command{
		Use:   "step [dataset-file]",
		Short: "Search one dataset step by step, writing each accepted state as it lands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Files.OutputDir = outputDir
			}
			flags.mode = config.ModeIncremental
			if err := flags.apply(cfg); err != nil {
				return err
			}

			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}

			sinks := append(c.FileSinks(), &stepPrinter{cmd: cmd})
			svc := app.NewPlacementService(c.Reader, c.Oracles, sinks, c.Log)
			for _, degree := range cfg.Search.Degrees {
				req := c.RunRequest()
				req.Path = args[0]
				req.Config.PolynomialDegree = degree
				res, err := svc.RunDataset(cmd.Context(), req)
				if err != nil {
					return err
				}
				printSummary(cmd, res)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (default PMU_OUTPUT_DIR)")
	return cmd
}

func newDemoCmd() *cobra.Command {
	var flags searchFlags
	var outputDir, reportPath string
	var buses, samples int
	var seed int64

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Search a synthetic bus angle dataset",
		Long: `Generate a synthetic grid where buses B2, B5 and B7 drive angDiff, search
it and print the trace.

Example: pmuplace demo --max 4 --degree 2 --report demo.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}

			gen := testkit.DefaultBusConfig()
			gen.Target = cfg.Search.Target
			gen.Buses = buses
			gen.Samples = samples
			gen.Seed = seed
			table, err := testkit.NewBusDataGenerator(gen).Generate()
			if err != nil {
				return err
			}

			dir := outputDir
			if dir == "" {
				if dir, err = os.MkdirTemp("", "pmuplace-demo-"); err != nil {
					return err
				}
			}
			path, err := testkit.WriteCSV(filepath.Join(dir, "input"), table)
			if err != nil {
				return err
			}
			cfg.Files.OutputDir = dir

			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			sinks := append(c.FileSinks(), c.Store.Sink())
			svc := app.NewPlacementService(c.Reader, c.Oracles, sinks, c.Log)

			req := c.RunRequest()
			req.Path = path
			req.Config.PolynomialDegree = cfg.Search.Degrees[0]
			res, err := svc.RunDataset(cmd.Context(), req)
			if err != nil {
				return err
			}
			printColumns(cmd, res)
			printTrace(cmd, res.Trace)
			printSummary(cmd, res)
			cmd.Printf("tables written under %s\n", dir)

			if reportPath != "" {
				stored, err := c.Store.GetRun(cmd.Context(), res.RunID)
				if err != nil {
					return err
				}
				if err := report.WriteHTML(reportPath, stored); err != nil {
					return err
				}
				cmd.Printf("report written to %s\n", reportPath)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputDir, "output", "", "Output directory (default: a new temp directory)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write an HTML report of the run to this file")
	cmd.Flags().IntVar(&buses, "buses", 8, "Number of candidate buses")
	cmd.Flags().IntVar(&samples, "samples", 120, "Number of rows")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic data")
	return cmd
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			gin.SetMode(cfg.Server.GinMode)

			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}

			addr := ":" + cfg.Server.Port
			c.Log.Info("serving datasets from %s on %s", cfg.Files.InputDir, addr)
			return api.NewServer(c.SearchHandler()).Run(addr)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT or 8080)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the placement tables in DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("migrations at version %s applied\n", migration.NewRunner().Version())
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	var out string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Render a stored run as HTML (or JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required to read stored runs")
			}
			c, err := container.New(cfg, logger())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}

			run, err := c.Runs.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(report.HTML(run))
				return err
			}
			return report.WriteHTML(out, run)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored run as JSON")
	return cmd
}

func printSummary(cmd *cobra.Command, r *app.RunResult) {
	if r.Best == nil {
		cmd.Printf("%s degree %d: no states accepted\n", r.Dataset, r.Config.PolynomialDegree)
		return
	}
	cmd.Printf("%s degree %d: %d states, best %s R²=%.6f (run %s, %d fits, %dms)\n",
		r.Dataset, r.Config.PolynomialDegree, len(r.Trace), r.Best.Key(), r.Best.Placement.Score,
		r.RunID, r.Evaluations, r.RuntimeMs)
}

func printColumns(cmd *cobra.Command, r *app.RunResult) {
	for _, c := range r.Columns {
		cmd.Printf("%-8s mean %8.4f  sd %8.4f  [%8.4f, %8.4f]\n", c.Name, c.Mean, c.StdDev, c.Min, c.Max)
	}
}

func printTrace(cmd *cobra.Command, trace placement.SearchTrace) {
	for _, e := range trace {
		printEntry(cmd, e)
	}
}

func printEntry(cmd *cobra.Command, e placement.TraceEntry) {
	cmd.Printf("%4d  %-11s %-6s %.6f  %s\n", e.Step, e.Phase, e.Move, e.Placement.Score, e.Key())
}

// stepPrinter echoes each step's entries as they are accepted
type stepPrinter struct {
	cmd *cobra.Command
}

func (p *stepPrinter) Begin(ctx context.Context, run ports.RunInfo) error {
	p.cmd.Printf("writing %s (run %s)\n", run.Dataset, run.ID)
	return nil
}

func (p *stepPrinter) Append(ctx context.Context, entries []placement.TraceEntry) error {
	for _, e := range entries {
		printEntry(p.cmd, e)
	}
	return nil
}

func (p *stepPrinter) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	return nil
}
