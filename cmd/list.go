package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/inkshelf/enricher/internal/model"
)

var (
	listJSON bool
	listNew  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookmarks and their enrichment state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.FetchAll(ctx)
		if err != nil {
			return eris.Wrap(err, "fetch bookmarks")
		}

		if listNew {
			filtered := records[:0]
			for _, rec := range records {
				if !rec.Enriched() {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}

		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		for _, rec := range records {
			fmt.Println(formatRecord(rec))
		}
		fmt.Printf("\n%d bookmarks\n", len(records))
		return nil
	},
}

func formatRecord(rec model.Record) string {
	state := "new"
	if rec.Enriched() {
		state = fmt.Sprintf("%d/5", rec.Rating)
	}
	line := fmt.Sprintf("[%s] %s", state, rec.URL)
	if rec.Title != "" {
		line += "  " + rec.Title
	}
	if len(rec.Tags) > 0 {
		line += "  (" + strings.Join(rec.Tags, ", ") + ")"
	}
	return line
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	listCmd.Flags().BoolVar(&listNew, "new", false, "only unenriched bookmarks")
	rootCmd.AddCommand(listCmd)
}
