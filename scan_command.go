package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/capture"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/catalog"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/collection"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/config"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/index"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/scan"
)

func newScanCommand() *cobra.Command {
	var noAutoScan bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Identify cards from the live camera feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runScan(cfg, !noAutoScan)
		},
	}

	cmd.Flags().BoolVar(&noAutoScan, "no-auto", false, "disable periodic auto-scan; use 's' to scan manually")
	return cmd
}

func runScan(cfg config.Config, autoScan bool) error {
	store, err := catalog.Open(cfg.CatalogDB)
	if err != nil {
		return fmt.Errorf("open catalog database: %w", err)
	}
	defer store.Close()

	ix := index.New()
	validator := embedding.NewValidator(cfg.EmbeddingDim)
	validator.NormTol = cfg.NormTolerance
	loader := catalog.NewCorpusLoader(store, ix, validator, cfg.HashBits)

	report, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	if ix.Size() == 0 {
		return fmt.Errorf("catalog is empty; run 'riftsnap index' first")
	}
	fmt.Printf("Corpus loaded: %d cards ready, %d dropped during validation\n",
		report.ValidCount, report.InvalidCount)

	cam, err := capture.Open(cfg.CameraDevice, rectifyConfig(cfg), cfg.HashBits)
	if err != nil {
		return fmt.Errorf("camera unavailable: %w", err)
	}

	coll, err := collection.Open(cfg.CollectionDB)
	if err != nil {
		cam.Close()
		return fmt.Errorf("open collection database: %w", err)
	}
	defer coll.Close()

	opts := scan.DefaultOptions()
	opts.SampleInterval = time.Duration(cfg.SampleIntervalMS) * time.Millisecond
	opts.Cooldown = time.Duration(cfg.CooldownMS) * time.Millisecond
	opts.AutoConfirmThreshold = cfg.AutoConfirmThreshold
	opts.TopK = cfg.TopK
	opts.AutoScan = autoScan
	opts.Session = uuid.NewString()[:8]

	orch := scan.New(cam, ix, coll, opts)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := orch.Start(ctx); err != nil {
		cam.Close()
		return err
	}
	defer orch.Stop()

	fmt.Printf("Scanning (session %s). Point the camera at a card.\n", opts.Session)
	fmt.Println("Commands: [y]/enter add pending card, [n] skip, [s] scan now, [q] quit")

	return interactLoop(ctx, orch)
}

// interactLoop mirrors the pending match to the terminal and applies
// the user's confirm/cancel decisions.
func interactLoop(ctx context.Context, orch *scan.Orchestrator) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(strings.ToLower(sc.Text())):
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var shown time.Time
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping scan.")
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "", "y":
				if pending := orch.Pending(); pending != nil {
					fmt.Printf("Added %s to collection.\n", pending.Candidate.Entry.Name)
				}
				orch.Confirm()
			case "n":
				orch.Cancel()
			case "s":
				pending, err := orch.ScanNow(ctx)
				if err != nil {
					fmt.Printf("Manual scan failed: %v\n", err)
				} else if pending == nil {
					fmt.Println("No candidates for the current frame.")
				}
			case "q":
				return nil
			default:
				fmt.Println("Commands: [y]/enter add, [n] skip, [s] scan now, [q] quit")
			}

		case <-ticker.C:
			pending := orch.Pending()
			if pending != nil && !pending.CreatedAt.Equal(shown) {
				shown = pending.CreatedAt
				entry := pending.Candidate.Entry
				fmt.Printf("\nMatch: %s", entry.Name)
				if entry.SetID != "" {
					fmt.Printf(" [%s]", entry.SetID)
				}
				fmt.Printf(" (distance %.0f). Add to collection? [y/n] ", pending.Distance)
			}
		}
	}
}
