package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/catalog"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/config"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/rectify"
)

func newIndexCommand() *cobra.Command {
	var folder string
	var withEmbeddings bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the card catalog from a folder of reference images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runIndex(cmd.Context(), cfg, folder, withEmbeddings)
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "folder of reference card images (required)")
	cmd.Flags().BoolVar(&withEmbeddings, "embeddings", false, "also fetch embeddings from the encoder service")
	cmd.MarkFlagRequired("folder")
	return cmd
}

func runIndex(ctx context.Context, cfg config.Config, folder string, withEmbeddings bool) error {
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("cannot access folder path %s: %w", folder, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folder)
	}

	store, err := catalog.Open(cfg.CatalogDB)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}
	defer store.Close()

	opts := catalog.IngestOptions{
		FolderPath: folder,
		HashBits:   cfg.HashBits,
		Rectify:    rectifyConfig(cfg),
		MaxWorkers: optimalWorkers(),
		DebugMode:  cfg.Debug,
	}
	if withEmbeddings {
		if cfg.EmbeddingURL == "" {
			return fmt.Errorf("--embeddings requires EMBEDDING_URL to be configured")
		}
		validator := embedding.NewValidator(cfg.EmbeddingDim)
		validator.NormTol = cfg.NormTolerance
		opts.Embedder = embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey)
		opts.Validator = validator
	}

	fmt.Printf("Starting catalog indexing...\n")
	fmt.Printf("Source folder: %s\n", folder)
	fmt.Printf("Database: %s\n", cfg.CatalogDB)

	startTime := time.Now()
	result, err := catalog.Ingest(ctx, store, opts)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing completed in %v\n", time.Since(startTime))
	fmt.Printf("- Processed: %d\n", result.Processed)
	fmt.Printf("- Stored: %d\n", result.Stored)
	fmt.Printf("- Errors: %d\n", result.Errors)

	if stats, err := store.GetStats(); err == nil {
		fmt.Printf("- Catalog now holds %d cards (%d hashed, %d embedded)\n",
			stats.TotalCards, stats.Hashed, stats.Embedded)
	}
	return nil
}

func rectifyConfig(cfg config.Config) rectify.Config {
	rcfg := rectify.DefaultConfig()
	rcfg.CardWidth = cfg.CardWidth
	rcfg.CardHeight = cfg.CardHeight
	rcfg.MinAreaFrac = cfg.MinCardAreaFrac
	rcfg.FallbackCropFrac = cfg.FallbackCropFrac
	return rcfg
}

// optimalWorkers leaves headroom for the CGo image code, the way heavy
// native pipelines size their pools.
func optimalWorkers() int {
	workers := runtime.NumCPU() * 3 / 4
	if workers < 1 {
		workers = 1
	}
	return workers
}
