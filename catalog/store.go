// Package catalog owns the card catalog: the SQLite store of reference
// cards, the reference-image ingestion pipeline and the corpus loader
// that turns stored rows into the in-memory candidate index.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one catalog row as persisted: identity plus the raw
// fingerprint payload (a hex hash string or a JSON-encoded embedding).
type Record struct {
	ID             string
	Name           string
	SetID          string
	Rarity         string
	ImagePath      string
	RawFingerprint string
}

// Store is the SQLite-backed catalog.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the catalog database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		set_id TEXT,
		rarity TEXT,
		image_path TEXT,
		art_hash TEXT,
		embedding TEXT,
		indexed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cards_art_hash ON cards(art_hash);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes one catalog card, replacing any previous row for the
// same id.
func (s *Store) Upsert(rec Record, embeddingJSON string) error {
	stmt, err := s.db.Prepare(`
		INSERT OR REPLACE INTO cards (
			id, name, set_id, rarity, image_path, art_hash, embedding, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", rec.ID, err)
	}
	defer stmt.Close()

	artHash := ""
	if embeddingJSON == "" {
		artHash = rec.RawFingerprint
	}

	_, err = stmt.Exec(
		rec.ID,
		rec.Name,
		rec.SetID,
		rec.Rarity,
		rec.ImagePath,
		artHash,
		embeddingJSON,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cannot insert card %s: %v", rec.ID, err)
	}
	return nil
}

// LoadAll streams every catalog row. Rows carrying an embedding payload
// surface it as the raw fingerprint; otherwise the art hash is used.
func (s *Store) LoadAll() ([]Record, error) {
	rows, err := s.db.Query(`SELECT id, name, set_id, rarity, image_path, art_hash, embedding FROM cards ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var setID, rarity, imagePath, artHash, embedding sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Name, &setID, &rarity, &imagePath, &artHash, &embedding); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		rec.SetID = setID.String
		rec.Rarity = rarity.String
		rec.ImagePath = imagePath.String
		if embedding.String != "" {
			rec.RawFingerprint = embedding.String
		} else {
			rec.RawFingerprint = artHash.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats summarizes the stored catalog.
type Stats struct {
	TotalCards int
	Hashed     int
	Embedded   int
}

// GetStats counts stored cards by fingerprint payload.
func (s *Store) GetStats() (*Stats, error) {
	var stats Stats

	if err := s.db.QueryRow("SELECT COUNT(*) FROM cards").Scan(&stats.TotalCards); err != nil {
		return nil, fmt.Errorf("failed to count cards: %v", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cards WHERE art_hash IS NOT NULL AND art_hash != ''").Scan(&stats.Hashed); err != nil {
		return nil, fmt.Errorf("failed to count hashed cards: %v", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cards WHERE embedding IS NOT NULL AND embedding != ''").Scan(&stats.Embedded); err != nil {
		return nil, fmt.Errorf("failed to count embedded cards: %v", err)
	}

	return &stats, nil
}
