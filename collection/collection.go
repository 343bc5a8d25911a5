// Package collection persists the user's owned-card collection. It is
// the collaborator the scan orchestrator notifies on a confirmed match;
// failures here are logged and never surface into the scan loop.
package collection

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

// OwnedCard is one row of the collection.
type OwnedCard struct {
	ID      string
	Name    string
	SetName string
	Rarity  string
	Count   int
	AddedAt string
}

// Stats aggregates the collection.
type Stats struct {
	TotalCards  int
	UniqueCards int
	ByRarity    map[string]int
}

// Store is the SQLite-backed collection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the collection database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS owned_cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		set_name TEXT,
		rarity TEXT,
		count INTEGER NOT NULL DEFAULT 1,
		added_at TEXT
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create collection schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts the card or increments its count when already owned.
func (s *Store) Add(card types.CardRecord) error {
	stmt, err := s.db.Prepare(`
		INSERT INTO owned_cards (id, name, set_name, rarity, count, added_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET count = count + 1
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", card.ID, err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(card.ID, card.Name, card.SetName, card.Rarity, time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("cannot add card %s: %v", card.ID, err)
	}
	return nil
}

// SetCount pins the owned count for a card. A count of zero removes it.
func (s *Store) SetCount(id string, count int) error {
	if count <= 0 {
		return s.Remove(id)
	}
	res, err := s.db.Exec("UPDATE owned_cards SET count = ? WHERE id = ?", count, id)
	if err != nil {
		return fmt.Errorf("cannot update count for %s: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s not in collection", id)
	}
	return nil
}

// Remove deletes a card from the collection.
func (s *Store) Remove(id string) error {
	if _, err := s.db.Exec("DELETE FROM owned_cards WHERE id = ?", id); err != nil {
		return fmt.Errorf("cannot remove card %s: %v", id, err)
	}
	return nil
}

// List returns the collection ordered by name.
func (s *Store) List() ([]OwnedCard, error) {
	rows, err := s.db.Query(`SELECT id, name, set_name, rarity, count, added_at FROM owned_cards ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("collection query: %w", err)
	}
	defer rows.Close()

	var cards []OwnedCard
	for rows.Next() {
		var c OwnedCard
		var setName, rarity, addedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &setName, &rarity, &c.Count, &addedAt); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		c.SetName = setName.String
		c.Rarity = rarity.String
		c.AddedAt = addedAt.String
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// GetStats aggregates totals and per-rarity counts.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{ByRarity: make(map[string]int)}

	err := s.db.QueryRow("SELECT COALESCE(SUM(count), 0), COUNT(*) FROM owned_cards").
		Scan(&stats.TotalCards, &stats.UniqueCards)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate collection: %v", err)
	}

	rows, err := s.db.Query("SELECT COALESCE(rarity, ''), SUM(count) FROM owned_cards GROUP BY rarity")
	if err != nil {
		return nil, fmt.Errorf("failed to group by rarity: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rarity string
		var count int
		if err := rows.Scan(&rarity, &count); err != nil {
			return nil, fmt.Errorf("scan rarity row: %v", err)
		}
		if rarity == "" {
			rarity = "unknown"
		}
		stats.ByRarity[rarity] = count
	}
	return stats, rows.Err()
}

// CardConfirmed implements the orchestrator's notifier: a one-way,
// fire-and-forget persistence call. Errors are logged, never returned
// into the scan loop.
func (s *Store) CardConfirmed(card types.CardRecord) {
	if err := s.Add(card); err != nil {
		logging.LogError("failed to persist confirmed card %s: %v", card.ID, err)
	}
}
