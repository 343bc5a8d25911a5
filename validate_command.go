package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/catalog"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/config"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/fingerprint"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/index"
)

func newValidateCommand() *cobra.Command {
	var probeSameA, probeSameB, probeOther string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog corpus and the embedding pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, probeSameA, probeSameB, probeOther)
		},
	}

	cmd.Flags().StringVar(&probeSameA, "probe-a", "", "photo of a card, for the pipeline health checks")
	cmd.Flags().StringVar(&probeSameB, "probe-b", "", "a second photo of the same card")
	cmd.Flags().StringVar(&probeOther, "probe-other", "", "photo of a different card")
	return cmd
}

func runValidate(ctx context.Context, cfg config.Config, probeSameA, probeSameB, probeOther string) error {
	store, err := catalog.Open(cfg.CatalogDB)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}
	defer store.Close()

	ix := index.New()
	validator := embedding.NewValidator(cfg.EmbeddingDim)
	validator.NormTol = cfg.NormTolerance
	loader := catalog.NewCorpusLoader(store, ix, validator, cfg.HashBits)

	report, err := loader.Refresh()
	if err != nil {
		return fmt.Errorf("build corpus: %w", err)
	}

	fmt.Printf("Corpus kind: %s\n", report.Kind)

	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"Total Loaded", "Valid", "Invalid"})
	summary.AppendRow(table.Row{report.TotalLoaded, report.ValidCount, report.InvalidCount})
	summary.Render()

	if len(report.SampleCards) > 0 {
		fmt.Println("\nDiagnostic samples:")
		samples := table.NewWriter()
		samples.SetOutputMirror(os.Stdout)
		samples.AppendHeader(table.Row{"ID", "Name", "Leading Values", "Norm", "Valid"})
		for _, s := range report.SampleCards {
			samples.AppendRow(table.Row{s.ID, s.Name, fmt.Sprintf("%.4f", s.Leading), fmt.Sprintf("%.6f", s.Norm), s.Valid})
		}
		samples.Render()
	}

	for _, w := range report.Warnings {
		fmt.Printf("\nWARNING: %s\n", w)
	}

	if probeSameA == "" {
		return nil
	}
	if probeSameB == "" || probeOther == "" {
		return fmt.Errorf("health checks need --probe-a, --probe-b and --probe-other together")
	}
	if cfg.EmbeddingURL == "" {
		return fmt.Errorf("health checks require EMBEDDING_URL to be configured")
	}

	return runHealthChecks(ctx, cfg, probeSameA, probeSameB, probeOther)
}

// runHealthChecks embeds the probe images and grades the three
// calibrated similarity checks of the encoder pipeline.
func runHealthChecks(ctx context.Context, cfg config.Config, sameA, sameB, other string) error {
	client := embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey)

	first, err := client.EmbedFile(ctx, sameA)
	if err != nil {
		return fmt.Errorf("embed %s: %w", sameA, err)
	}
	reencoded, err := client.EmbedFile(ctx, sameA)
	if err != nil {
		return fmt.Errorf("re-embed %s: %w", sameA, err)
	}
	second, err := client.EmbedFile(ctx, sameB)
	if err != nil {
		return fmt.Errorf("embed %s: %w", sameB, err)
	}
	distinct, err := client.EmbedFile(ctx, other)
	if err != nil {
		return fmt.Errorf("embed %s: %w", other, err)
	}

	reencodeSim, err := fingerprint.CosineSimilarity(first, reencoded)
	if err != nil {
		return fmt.Errorf("re-encode similarity: %w", err)
	}
	sameCardSim, err := fingerprint.CosineSimilarity(first, second)
	if err != nil {
		return fmt.Errorf("same-card similarity: %w", err)
	}
	distinctSim, err := fingerprint.CosineSimilarity(first, distinct)
	if err != nil {
		return fmt.Errorf("distinct-card similarity: %w", err)
	}

	fmt.Println("\nEmbedding pipeline health:")
	health := table.NewWriter()
	health.SetOutputMirror(os.Stdout)
	health.AppendHeader(table.Row{"Check", "Similarity", "Status"})
	for _, check := range embedding.EvaluateHealth(reencodeSim, sameCardSim, distinctSim) {
		health.AppendRow(table.Row{check.Name, fmt.Sprintf("%.4f", check.Similarity), check.Status.String()})
	}
	health.Render()
	return nil
}
