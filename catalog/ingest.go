package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/fingerprint"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/rectify"
)

// Embedder produces an embedding vector for an image file. The catalog
// only consumes its output; the encoder itself is an external service.
type Embedder interface {
	EmbedFile(ctx context.Context, path string) ([]float64, error)
}

// IngestOptions configures a reference-image ingestion run.
type IngestOptions struct {
	FolderPath string
	HashBits   int
	Rectify    rectify.Config
	MaxWorkers int
	DebugMode  bool

	// Embedder, when set, attaches a validated embedding to each card in
	// addition to the art hash. Validator must be set alongside it.
	Embedder  Embedder
	Validator *embedding.Validator
}

// IngestResult summarizes an ingestion run.
type IngestResult struct {
	Processed int
	Stored    int
	Errors    int
}

// manifestEntry is one row of an optional manifest.json next to the
// reference images, keyed by file name.
type manifestEntry struct {
	File   string `json:"file"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	SetID  string `json:"set_id"`
	Rarity string `json:"rarity"`
}

func loadManifest(folder string) map[string]manifestEntry {
	data, err := os.ReadFile(filepath.Join(folder, "manifest.json"))
	if err != nil {
		return nil
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.LogWarning("malformed manifest.json in %s: %v", folder, err)
		return nil
	}
	byFile := make(map[string]manifestEntry, len(entries))
	for _, e := range entries {
		byFile[e.File] = e
	}
	return byFile
}

// identityFor derives the card identity for a reference image, from the
// manifest when present, otherwise from the file name stem.
func identityFor(path string, manifest map[string]manifestEntry) Record {
	base := filepath.Base(path)
	if m, ok := manifest[base]; ok {
		return Record{ID: m.ID, Name: m.Name, SetID: m.SetID, Rarity: m.Rarity, ImagePath: path}
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return Record{ID: stem, Name: name, ImagePath: path}
}

// Ingest walks a folder of reference card images, rectifies each card
// face, hashes its art region and upserts the result into the store.
// Per-file failures are counted and logged, never fatal to the run.
func Ingest(ctx context.Context, store *Store, opts IngestOptions) (IngestResult, error) {
	registry := NewLoaderRegistry()
	manifest := loadManifest(opts.FolderPath)

	workers := opts.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		result    IngestResult
		semaphore = make(chan struct{}, workers)
	)

	// Progress line on a fixed cadence, the way long indexing runs
	// report.
	ticker := time.NewTicker(500 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu.Lock()
				fmt.Printf("\rProgress: %d processed (%d stored, %d errors)", result.Processed, result.Stored, result.Errors)
				mu.Unlock()
			}
		}
	}()
	defer func() {
		ticker.Stop()
		close(done)
		fmt.Println()
	}()

	walkErr := filepath.Walk(opts.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !registry.CanLoadFile(path) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := ingestOne(ctx, store, registry, manifest, p, opts)

			mu.Lock()
			result.Processed++
			if err != nil {
				result.Errors++
				logging.LogError("ingest %s: %v", p, err)
			} else {
				result.Stored++
				if opts.DebugMode {
					logging.DebugLog("ingested %s", p)
				}
			}
			mu.Unlock()
		}(path)
		return nil
	})

	wg.Wait()

	if walkErr != nil && walkErr != context.Canceled {
		return result, fmt.Errorf("walk %s: %w", opts.FolderPath, walkErr)
	}
	return result, nil
}

func ingestOne(ctx context.Context, store *Store, registry *LoaderRegistry, manifest map[string]manifestEntry, path string, opts IngestOptions) error {
	img, err := registry.LoadImage(path)
	if err != nil {
		return err
	}
	defer img.Close()

	// Reference photos go through the same normalizer as live frames;
	// clean scans fall back to the center crop, which is exact for a
	// full-frame scan.
	card, _, _ := rectify.Rectify(img, opts.Rectify)
	defer card.Close()

	rec := identityFor(path, manifest)

	hash, err := fingerprint.ArtHash(card, opts.HashBits)
	if err != nil {
		return fmt.Errorf("hash art region: %w", err)
	}
	rec.RawFingerprint = hash

	embeddingJSON := ""
	if opts.Embedder != nil {
		vec, err := opts.Embedder.EmbedFile(ctx, path)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if opts.Validator != nil {
			val := opts.Validator.Validate(vec)
			if !val.Valid {
				if !opts.Validator.Repairable(vec, val) {
					return fmt.Errorf("embedding rejected: %s", strings.Join(val.Issues, "; "))
				}
				vec = embedding.Renormalize(vec)
			}
		}
		encoded, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		embeddingJSON = string(encoded)
	}

	return store.Upsert(rec, embeddingJSON)
}
