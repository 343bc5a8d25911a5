package catalog

import (
	"fmt"
	"testing"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/embedding"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/index"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

type stubSource struct {
	records []Record
	calls   int
}

func (s *stubSource) LoadAll() ([]Record, error) {
	s.calls++
	return s.records, nil
}

func newTestLoader(records []Record, dim int) (*CorpusLoader, *index.Index, *stubSource) {
	src := &stubSource{records: records}
	ix := index.New()
	validator := embedding.NewValidator(dim)
	return NewCorpusLoader(src, ix, validator, 8), ix, src
}

func embRecord(id string, vec string) Record {
	return Record{ID: id, Name: id, RawFingerprint: vec}
}

func TestLoadHashCorpus(t *testing.T) {
	loader, ix, _ := newTestLoader([]Record{
		{ID: "a", Name: "Card A", RawFingerprint: "0000000000000000"},
		{ID: "b", Name: "Card B", RawFingerprint: "ffffffffffffffff"},
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Kind != types.FingerprintHash {
		t.Fatalf("corpus kind = %s, want hash", report.Kind)
	}
	if report.ValidCount != 2 || report.InvalidCount != 0 {
		t.Fatalf("counts = %d valid, %d invalid; want 2, 0", report.ValidCount, report.InvalidCount)
	}
	if ix.Size() != 2 {
		t.Fatalf("index size = %d, want 2", ix.Size())
	}
}

func TestLoadDropsWrongDimensionEmbedding(t *testing.T) {
	loader, ix, _ := newTestLoader([]Record{
		embRecord("ok", "[1, 0, 0, 0]"),
		embRecord("short", "[1, 0, 0]"),
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.ValidCount != 1 {
		t.Fatalf("valid count = %d, want 1", report.ValidCount)
	}
	if report.InvalidCount != 1 {
		t.Fatalf("invalid count = %d, want 1", report.InvalidCount)
	}
	if ix.Size() != 1 {
		t.Fatalf("index size = %d, want 1", ix.Size())
	}
}

func TestLoadRepairsNormOnlyFailure(t *testing.T) {
	loader, ix, _ := newTestLoader([]Record{
		embRecord("loud", "[2, 0, 0, 0]"),
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.ValidCount != 1 || report.InvalidCount != 0 {
		t.Fatalf("counts = %d valid, %d invalid; want 1, 0", report.ValidCount, report.InvalidCount)
	}
	if len(report.SampleCards) != 1 || !report.SampleCards[0].Valid {
		t.Fatalf("repaired entry sample = %+v, want valid", report.SampleCards)
	}

	// The stored vector must be renormalized.
	query := types.Fingerprint{Kind: types.FingerprintEmbedding, Vector: []float64{1, 0, 0, 0}}
	ranked, err := ix.FindMatches(query)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if ranked[0].Distance > 1e-9 {
		t.Fatalf("renormalized vector distance = %g, want 0", ranked[0].Distance)
	}
}

func TestLoadDropsMalformedEmbeddingPayload(t *testing.T) {
	loader, _, _ := newTestLoader([]Record{
		embRecord("bad", `[1, "x", 0, 0]`),
		embRecord("ok", "[0, 1, 0, 0]"),
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.InvalidCount != 1 || report.ValidCount != 1 {
		t.Fatalf("counts = %d valid, %d invalid; want 1, 1", report.ValidCount, report.InvalidCount)
	}
}

func TestLoadRejectsMixedKinds(t *testing.T) {
	loader, ix, _ := newTestLoader([]Record{
		embRecord("emb", "[1, 0, 0, 0]"),
		{ID: "hash", Name: "hash", RawFingerprint: "0000000000000000"},
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.Kind != types.FingerprintEmbedding {
		t.Fatalf("corpus kind = %s, want embedding", report.Kind)
	}
	if report.InvalidCount != 1 {
		t.Fatalf("mixed-kind entry not dropped: %+v", report)
	}
	if ix.Size() != 1 {
		t.Fatalf("index size = %d, want 1", ix.Size())
	}
}

func TestLoadRejectsEmptyAndBadHashPayloads(t *testing.T) {
	loader, _, _ := newTestLoader([]Record{
		{ID: "empty", Name: "empty", RawFingerprint: ""},
		{ID: "short", Name: "short", RawFingerprint: "00ff"},
		{ID: "nothex", Name: "nothex", RawFingerprint: "zzzzzzzzzzzzzzzz"},
		{ID: "ok", Name: "ok", RawFingerprint: "0123456789abcdef"},
	}, 4)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if report.ValidCount != 1 || report.InvalidCount != 3 {
		t.Fatalf("counts = %d valid, %d invalid; want 1, 3", report.ValidCount, report.InvalidCount)
	}
}

func TestDuplicateSourceWarning(t *testing.T) {
	vec := "[0.4472135954999579, 0.4472135954999579, 0.4472135954999579, 0.4472135954999579, 0.4472135954999579]"
	loader, _, _ := newTestLoader([]Record{
		embRecord("one", vec),
		embRecord("two", vec),
	}, 5)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v, want the duplicated-source warning", report.Warnings)
	}
}

func TestNoDuplicateWarningForDistinctVectors(t *testing.T) {
	loader, _, _ := newTestLoader([]Record{
		embRecord("one", "[1, 0, 0, 0, 0]"),
		embRecord("two", "[0, 1, 0, 0, 0]"),
	}, 5)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestLoadIsIdempotentRefreshIsNot(t *testing.T) {
	loader, _, src := newTestLoader([]Record{
		{ID: "a", Name: "a", RawFingerprint: "0000000000000000"},
	}, 4)

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := loader.Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("Load read the source %d times, want 1", src.calls)
	}

	if _, err := loader.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("Refresh did not re-read the source: %d calls", src.calls)
	}
}

func TestDiagnosticSamplesBounded(t *testing.T) {
	var records []Record
	for i := 0; i < 8; i++ {
		records = append(records, embRecord(fmt.Sprintf("card-%d", i), "[1, 0, 0, 0, 0]"))
	}
	loader, _, _ := newTestLoader(records, 5)

	report, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(report.SampleCards) != 5 {
		t.Fatalf("sample count = %d, want 5", len(report.SampleCards))
	}
}
