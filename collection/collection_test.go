package collection

import (
	"path/filepath"
	"testing"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "collection.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddIncrementsCount(t *testing.T) {
	store := openTestStore(t)
	card := types.CardRecord{ID: "OGN-042", Name: "Vanguard", SetName: "Origins", Rarity: "rare"}

	for i := 0; i < 3; i++ {
		if err := store.Add(card); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	cards, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("unique cards = %d, want 1", len(cards))
	}
	if cards[0].Count != 3 {
		t.Fatalf("count = %d, want 3", cards[0].Count)
	}
	if cards[0].Name != "Vanguard" || cards[0].SetName != "Origins" {
		t.Fatalf("unexpected row: %+v", cards[0])
	}
}

func TestGetStats(t *testing.T) {
	store := openTestStore(t)
	add := func(id, rarity string, n int) {
		for i := 0; i < n; i++ {
			if err := store.Add(types.CardRecord{ID: id, Name: id, Rarity: rarity}); err != nil {
				t.Fatalf("Add %s: %v", id, err)
			}
		}
	}
	add("OGN-001", "common", 2)
	add("OGN-002", "common", 1)
	add("OGN-003", "epic", 1)

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalCards != 4 {
		t.Fatalf("total = %d, want 4", stats.TotalCards)
	}
	if stats.UniqueCards != 3 {
		t.Fatalf("unique = %d, want 3", stats.UniqueCards)
	}
	if stats.ByRarity["common"] != 3 || stats.ByRarity["epic"] != 1 {
		t.Fatalf("by rarity = %v", stats.ByRarity)
	}
}

func TestSetCountAndRemove(t *testing.T) {
	store := openTestStore(t)
	if err := store.Add(types.CardRecord{ID: "OGN-007", Name: "Seven"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.SetCount("OGN-007", 4); err != nil {
		t.Fatalf("SetCount: %v", err)
	}
	cards, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if cards[0].Count != 4 {
		t.Fatalf("count = %d, want 4", cards[0].Count)
	}

	if err := store.SetCount("OGN-404", 2); err == nil {
		t.Fatal("SetCount on an unowned card should fail")
	}

	// A zero count removes the row.
	if err := store.SetCount("OGN-007", 0); err != nil {
		t.Fatalf("SetCount to zero: %v", err)
	}
	cards, err = store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("expected empty collection, got %d rows", len(cards))
	}
}

func TestCardConfirmedPersists(t *testing.T) {
	store := openTestStore(t)
	store.CardConfirmed(types.CardRecord{ID: "OGN-100", Name: "Hundred"})

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalCards != 1 {
		t.Fatalf("confirmed card not persisted: %+v", stats)
	}
}
