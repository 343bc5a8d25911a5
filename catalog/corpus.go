package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/fingerprint"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/index"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

const (
	// diagnosticSamples is how many leading entries keep a diagnostic
	// record during a corpus build.
	diagnosticSamples = 5

	// leadingValues is how many leading vector components a diagnostic
	// sample retains.
	leadingValues = 5

	// duplicateTolerance is the absolute per-component tolerance of the
	// duplicated-source-data heuristic. Deliberately loose; it exists to
	// catch an upstream encoder returning the same vector for different
	// inputs, not to measure similarity.
	duplicateTolerance = 0.001
)

// CorpusSource supplies raw catalog records. The SQLite Store satisfies
// it; tests substitute fixed slices.
type CorpusSource interface {
	LoadAll() ([]Record, error)
}

// CorpusLoader builds the in-memory candidate index from a catalog
// source, validating every fingerprint on the way in. Load and Refresh
// are idempotent and safe to call repeatedly; each run swaps a fresh
// snapshot into the index.
type CorpusLoader struct {
	mu        sync.Mutex
	source    CorpusSource
	index     *index.Index
	validator *embedding.Validator
	hashBits  int
	loaded    bool
	report    types.CorpusReport
}

// NewCorpusLoader wires a loader for the given source and target index.
func NewCorpusLoader(source CorpusSource, ix *index.Index, validator *embedding.Validator, hashBits int) *CorpusLoader {
	return &CorpusLoader{
		source:    source,
		index:     ix,
		validator: validator,
		hashBits:  hashBits,
	}
}

// Load builds the corpus on first call and is a no-op afterwards,
// returning the retained report. Use Refresh to force a rebuild.
func (l *CorpusLoader) Load() (types.CorpusReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.report, nil
	}
	return l.rebuild()
}

// Refresh rebuilds the corpus unconditionally and swaps the new
// snapshot into the index.
func (l *CorpusLoader) Refresh() (types.CorpusReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebuild()
}

// Report returns the report of the most recent build.
func (l *CorpusLoader) Report() types.CorpusReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.report
}

func (l *CorpusLoader) rebuild() (types.CorpusReport, error) {
	records, err := l.source.LoadAll()
	if err != nil {
		return types.CorpusReport{}, fmt.Errorf("load catalog records: %w", err)
	}

	var (
		report     types.CorpusReport
		entries    []types.CatalogEntry
		kindSet    bool
		corpusKind types.FingerprintKind
	)
	report.TotalLoaded = len(records)

	for _, rec := range records {
		fp, sample, err := l.buildFingerprint(rec)
		if len(report.SampleCards) < diagnosticSamples && sample != nil {
			report.SampleCards = append(report.SampleCards, *sample)
		}
		if err != nil {
			report.InvalidCount++
			logging.LogWarning("catalog entry %s dropped: %v", rec.ID, err)
			continue
		}

		// The first valid entry fixes the corpus kind; a mixed corpus is
		// a configuration error and mismatching entries are dropped.
		if !kindSet {
			corpusKind = fp.Kind
			kindSet = true
		} else if fp.Kind != corpusKind {
			report.InvalidCount++
			logging.LogError("catalog entry %s dropped: fingerprint kind %s in a %s corpus", rec.ID, fp.Kind, corpusKind)
			continue
		}

		entries = append(entries, types.CatalogEntry{
			ID:          rec.ID,
			Name:        rec.Name,
			SetID:       rec.SetID,
			Rarity:      rec.Rarity,
			ImagePath:   rec.ImagePath,
			Fingerprint: fp,
		})
		report.ValidCount++
	}

	report.Kind = corpusKind
	if warning := duplicateSourceWarning(report.SampleCards); warning != "" {
		report.Warnings = append(report.Warnings, warning)
		logging.LogWarning("%s", warning)
	}

	l.index.SetCorpus(entries, corpusKind)
	l.report = report
	l.loaded = true

	logging.LogInfo("corpus loaded: %d valid, %d invalid of %d (%s)",
		report.ValidCount, report.InvalidCount, report.TotalLoaded, corpusKind)
	return report, nil
}

// buildFingerprint parses and validates one raw payload. The returned
// sample is non-nil for embedding payloads so the diagnostics window
// sees failures as well as passes.
func (l *CorpusLoader) buildFingerprint(rec Record) (types.Fingerprint, *types.SampleCard, error) {
	payload := strings.TrimSpace(rec.RawFingerprint)
	if payload == "" {
		return types.Fingerprint{}, nil, fmt.Errorf("empty fingerprint payload")
	}

	// Embedding payloads are JSON arrays; anything else is a hex hash.
	if strings.HasPrefix(payload, "[") {
		var vec []float64
		if err := json.Unmarshal([]byte(payload), &vec); err != nil {
			return types.Fingerprint{}, nil, fmt.Errorf("malformed embedding payload: %v", err)
		}

		val := l.validator.Validate(vec)
		sample := &types.SampleCard{
			ID:      rec.ID,
			Name:    rec.Name,
			Leading: leadingOf(vec),
			Norm:    val.Norm,
			Valid:   val.Valid,
		}

		if !val.Valid {
			if l.validator.Repairable(vec, val) {
				vec = embedding.Renormalize(vec)
				sample.Valid = true
			} else {
				return types.Fingerprint{}, sample, fmt.Errorf("embedding invalid: %s", strings.Join(val.Issues, "; "))
			}
		}

		return types.Fingerprint{Kind: types.FingerprintEmbedding, Vector: vec}, sample, nil
	}

	if len(payload) != fingerprint.HexWidth(l.hashBits) {
		return types.Fingerprint{}, nil, fmt.Errorf("hash width %d, expected %d hex chars", len(payload), fingerprint.HexWidth(l.hashBits))
	}
	if _, err := hex.DecodeString(payload); err != nil {
		return types.Fingerprint{}, nil, fmt.Errorf("malformed hash payload: %v", err)
	}

	return types.Fingerprint{Kind: types.FingerprintHash, Hash: payload}, nil, nil
}

func leadingOf(vec []float64) []float64 {
	n := leadingValues
	if len(vec) < n {
		n = len(vec)
	}
	leading := make([]float64, n)
	copy(leading, vec[:n])
	return leading
}

// duplicateSourceWarning flags the first two diagnostic samples when
// their leading values agree pairwise within duplicateTolerance across
// all positions. This is a sanity heuristic for a broken upstream
// pipeline returning the same vector for different inputs, not a hard
// error.
func duplicateSourceWarning(samples []types.SampleCard) string {
	if len(samples) < 2 {
		return ""
	}
	a, b := samples[0].Leading, samples[1].Leading
	if len(a) != leadingValues || len(b) != leadingValues {
		return ""
	}
	for i := 0; i < leadingValues; i++ {
		if math.Abs(a[i]-b[i]) > duplicateTolerance {
			return ""
		}
	}
	return fmt.Sprintf("possibly duplicated source data: %s and %s share leading embedding values", samples[0].ID, samples[1].ID)
}
