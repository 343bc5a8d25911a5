package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/collection"
)

func newCollectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Inspect and edit the owned-card collection",
	}
	cmd.AddCommand(newCollectionListCommand())
	cmd.AddCommand(newCollectionStatsCommand())
	cmd.AddCommand(newCollectionRemoveCommand())
	cmd.AddCommand(newCollectionSetCommand())
	return cmd
}

func openCollection() (*collection.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := collection.Open(cfg.CollectionDB)
	if err != nil {
		return nil, fmt.Errorf("open collection database: %w", err)
	}
	return store, nil
}

func newCollectionListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List owned cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCollection()
			if err != nil {
				return err
			}
			defer store.Close()

			cards, err := store.List()
			if err != nil {
				return err
			}
			if len(cards) == 0 {
				fmt.Println("Collection is empty.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"ID", "Name", "Set", "Rarity", "Count"})
			for _, c := range cards {
				t.AppendRow(table.Row{c.ID, c.Name, c.SetName, c.Rarity, c.Count})
			}
			t.Render()
			return nil
		},
	}
}

func newCollectionStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCollection()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.GetStats()
			if err != nil {
				return err
			}

			fmt.Printf("Total cards: %d\n", stats.TotalCards)
			fmt.Printf("Unique cards: %d\n", stats.UniqueCards)
			if len(stats.ByRarity) > 0 {
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"Rarity", "Count"})
				for rarity, count := range stats.ByRarity {
					t.AppendRow(table.Row{rarity, count})
				}
				t.Render()
			}
			return nil
		},
	}
}

func newCollectionRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <card-id>",
		Short: "Remove a card from the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCollection()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Remove(args[0])
		},
	}
}

func newCollectionSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <card-id> <count>",
		Short: "Set the owned count for a card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("count must be a number: %v", err)
			}

			store, err := openCollection()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SetCount(args[0], count)
		},
	}
}
