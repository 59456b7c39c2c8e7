package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pmuplace/internal"
	"pmuplace/internal/config"
	"pmuplace/internal/container"

	"github.com/joho/godotenv"
)

// main searches every dataset of PMU_INPUT_DIR with the PMU_* configuration.
// cmd/pmuplace offers the same run plus the step, demo, serve, migrate and
// report commands.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	c, err := container.New(appConfig, internal.NewDefaultLogger())
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	results, err := c.RunAll(ctx)
	for _, r := range results {
		log.Printf("%s degree %d: %d states accepted in %dms", r.Dataset, r.Config.PolynomialDegree, len(r.Trace), r.RuntimeMs)
	}
	if err != nil {
		log.Printf("Run finished with errors: %v", err)
		stop()
		c.Close()
		os.Exit(1)
	}
	log.Println("All datasets done")
}
