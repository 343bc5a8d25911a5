package types

import "time"

// FingerprintKind distinguishes the two fingerprint representations a
// corpus can carry. A single index instance is homogeneous: all entries
// share one kind.
type FingerprintKind int

const (
	FingerprintHash FingerprintKind = iota
	FingerprintEmbedding
)

func (k FingerprintKind) String() string {
	switch k {
	case FingerprintHash:
		return "hash"
	case FingerprintEmbedding:
		return "embedding"
	}
	return "unknown"
}

// Fingerprint is a tagged variant: either a fixed-width hex-encoded
// perceptual hash or an L2-normalized embedding vector.
type Fingerprint struct {
	Kind   FingerprintKind `json:"kind"`
	Hash   string          `json:"hash,omitempty"`
	Vector []float64       `json:"vector,omitempty"`
}

// IsZero reports whether the fingerprint carries no payload at all.
func (f Fingerprint) IsZero() bool {
	return f.Hash == "" && len(f.Vector) == 0
}

// CatalogEntry is one card in the candidate corpus. Entries are created
// at corpus-load time and never mutated; a refresh replaces the whole
// corpus snapshot.
type CatalogEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	SetID       string      `json:"set_id,omitempty"`
	Rarity      string      `json:"rarity,omitempty"`
	ImagePath   string      `json:"image_path"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// MatchCandidate pairs a corpus entry with its distance to a query
// fingerprint. Smaller distance means a closer match.
type MatchCandidate struct {
	Entry    *CatalogEntry
	Distance float64
}

// PendingMatch is a result awaiting explicit user confirmation. At most
// one is alive at a time.
type PendingMatch struct {
	Candidate MatchCandidate
	Distance  float64
	CreatedAt time.Time
}

// RecentScan records a confirmed card. History is bounded and ordered
// newest first.
type RecentScan struct {
	Entry     *CatalogEntry
	ScannedAt time.Time
}

// CardRecord is the minimal payload handed to the collection
// collaborator when a match is confirmed.
type CardRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SetName string `json:"set_name,omitempty"`
	Rarity  string `json:"rarity,omitempty"`
}

// ScanState enumerates the orchestrator states. AwaitingConfirmation
// holds exactly when a PendingMatch exists.
type ScanState int

const (
	StateIdle ScanState = iota
	StateStreaming
	StateAwaitingConfirmation
)

func (s ScanState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateAwaitingConfirmation:
		return "awaiting-confirmation"
	}
	return "unknown"
}

// SampleCard is one diagnostic sample retained while building a corpus:
// the id, name, leading raw values, computed norm and validation result
// of an ingested embedding.
type SampleCard struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Leading []float64 `json:"leading"`
	Norm    float64   `json:"norm"`
	Valid   bool      `json:"valid"`
}

// CorpusReport summarizes a corpus load for display and logging.
type CorpusReport struct {
	Kind         FingerprintKind `json:"kind"`
	TotalLoaded  int             `json:"total_loaded"`
	ValidCount   int             `json:"valid_count"`
	InvalidCount int             `json:"invalid_count"`
	SampleCards  []SampleCard    `json:"sample_cards"`
	Warnings     []string        `json:"warnings,omitempty"`
}
