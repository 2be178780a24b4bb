package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sevigo/patchlens/internal/config"
	"github.com/sevigo/patchlens/internal/db"
	"github.com/sevigo/patchlens/internal/storage"
)

var outputJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the indexed knowledge-base collections",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		dbConn, dbCleanup, err := db.NewDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbCleanup()
		store := storage.NewStore(dbConn.DB)

		collections, err := store.ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("failed to retrieve collections: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(collections)
		}

		if len(collections) == 0 {
			fmt.Println("No knowledge-base collections found. Run 'patchlens-cli index' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "COLLECTION\tFILES\tLAST INDEXED")
		for _, c := range collections {
			fmt.Fprintf(w, "%s\t%d\t%s\n",
				c.CollectionName,
				c.FileCount,
				c.LastIndexedAt.Format(time.RFC822),
			)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(statusCmd)
}
