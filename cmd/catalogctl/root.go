package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Sternrassler/game-catalog/internal/app"
	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/config"
	"github.com/Sternrassler/game-catalog/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Query and refresh the game catalog.",
		Long: `catalogctl reads the game catalog through the same cache as catalog-server:
memory, then the durable store, then the origin. Configuration comes from the
environment (CATALOG_URL, STORE_BACKEND, SQLITE_PATH, REDIS_URL, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().Bool("json", false, "Print JSON instead of a table")
	root.PersistentFlags().StringP("loglevel", "l", "", "Override LOG_LEVEL. Available: debug, info, warn, error, disabled")

	root.AddCommand(
		newListCmd(),
		newShowCmd(),
		newRandomCmd(),
		newCategoriesCmd(),
		newRefreshCmd(),
	)
	return root
}

// openApp loads the configuration and wires the catalog stack for one command.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("loglevel"); level != "" {
		if _, err := logging.ParseLevel(level); err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}

	lc := cfg.Logging()
	lc.Output = cmd.ErrOrStderr()
	lc.Pretty = true
	logging.Setup(lc)
	log.Logger = log.With().Str("run_id", uuid.NewString()).Logger()

	return app.New(cmd.Context(), cfg)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.Name, catalog.CategoryOf(e))
	}
	tw.Flush()
}
