package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/query"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists one page of games.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Manager.GetCatalog(cmd.Context())
			if err != nil {
				return err
			}

			category, _ := cmd.Flags().GetString("category")
			search, _ := cmd.Flags().GetString("q")
			sortBy, _ := cmd.Flags().GetString("sort")
			pageNum, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("size")

			entries := []catalog.Entry(snap.Catalog)
			if category != "" {
				entries = snap.Index.ByCategory(category)
			}
			entries = query.Filter(entries, search)
			switch sortBy {
			case "", "catalog":
			case "name":
				entries = query.SortByName(entries)
			default:
				return fmt.Errorf("unknown sort %q (use catalog or name)", sortBy)
			}

			page := query.Paginate(entries, pageNum, size)
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, page)
			}
			printEntries(out, page.Items)
			fmt.Fprintf(out, "\npage %d/%d (%d games)\n", page.Page, page.TotalPages, page.TotalItems)
			return nil
		},
	}

	cmd.Flags().StringP("category", "c", "", "Only games of this category")
	cmd.Flags().String("q", "", "Case-insensitive search over name, description and tags")
	cmd.Flags().String("sort", "catalog", "Order: catalog or name")
	cmd.Flags().IntP("page", "p", 1, "Page number (1-based)")
	cmd.Flags().IntP("size", "s", query.DefaultPageSize, "Games per page")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Shows one game.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			game, ok, err := a.Manager.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("game %q not found", args[0])
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, game)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID:\t%s\n", game.ID)
			fmt.Fprintf(tw, "Name:\t%s\n", game.Name)
			fmt.Fprintf(tw, "Category:\t%s\n", catalog.CategoryOf(game))
			if game.Publisher != "" {
				fmt.Fprintf(tw, "Publisher:\t%s\n", game.Publisher)
			}
			if game.ReleaseDate != "" {
				fmt.Fprintf(tw, "Released:\t%s\n", game.ReleaseDate)
			}
			if len(game.Tags) > 0 {
				fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(game.Tags, ", "))
			}
			if game.ImageURL != "" {
				fmt.Fprintf(tw, "Image:\t%s\n", game.ImageURL)
			}
			if game.Description != "" {
				fmt.Fprintf(tw, "Description:\t%s\n", game.Description)
			}
			return tw.Flush()
		},
	}
}

func newRandomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Picks random games without repetition.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, _ := cmd.Flags().GetInt("count")
			category, _ := cmd.Flags().GetString("category")

			snap, err := a.Manager.GetCatalog(cmd.Context())
			if err != nil {
				return err
			}
			entries := []catalog.Entry(snap.Catalog)
			if category != "" {
				entries = snap.Index.ByCategory(category)
			}

			picked := query.PickRandom(entries, n, nil)
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), picked)
			}
			printEntries(cmd.OutOrStdout(), picked)
			return nil
		},
	}

	cmd.Flags().IntP("count", "n", 1, "Number of games to pick")
	cmd.Flags().StringP("category", "c", "", "Only pick from this category")
	return cmd
}

func newCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "Lists categories with their game counts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Manager.GetCatalog(cmd.Context())
			if err != nil {
				return err
			}

			counts := snap.Index.Counts()
			names := snap.Index.Categories()
			out := cmd.OutOrStdout()

			if jsonOutput(cmd) {
				type row struct {
					Name  string `json:"name"`
					Count int    `json:"count"`
				}
				rows := make([]row, 0, len(names))
				for _, name := range names {
					rows = append(rows, row{name, counts[name]})
				}
				return printJSON(out, rows)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tGAMES")
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
			}
			return tw.Flush()
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetches the catalog from the origin and updates the durable store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			// restore first so the refresh can send validators
			if _, err := a.Manager.GetCatalog(cmd.Context()); err != nil {
				return err
			}
			snap, err := a.Manager.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh failed, %d cached games kept: %w", snap.Len(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d games, fetched at %s\n",
				snap.Len(), snap.FetchedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}
