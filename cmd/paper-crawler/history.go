// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/mengsi16/PaperCrawler/internal/ledger"
	"github.com/mengsi16/PaperCrawler/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent acquisitions from the ledger",
	Long: `History prints the most recent acquisition records, newest first. Failed
records include the reason each source gave up. Use --yaml for the full
records.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of records to show (0 for all)")
	historyCmd.Flags().Bool("yaml", false, "print full records as YAML")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("ledger_path")
	if path == "" {
		return fmt.Errorf("no ledger configured")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("ledger %s: %w", path, err)
	}

	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	recs, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		data, err := yaml.Marshal(recs)
		if err != nil {
			return fmt.Errorf("marshaling records: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	}
	return printHistory(os.Stdout, recs)
}

func printHistory(w io.Writer, recs []types.AcquisitionRecord) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No acquisitions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tSOURCE\tVENUE\tTITLE")
	for _, r := range recs {
		source := r.Source
		if source == "" {
			source = "-"
		}
		venue := r.Venue
		if venue == "" {
			venue = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), status(r), source, venue, r.Title)
		for _, f := range r.Failures {
			fmt.Fprintf(tw, "\t\t%s\t\t%s\n", f.Source, f.Summary)
		}
	}
	return tw.Flush()
}

func status(r types.AcquisitionRecord) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Success:
		return "downloaded"
	default:
		return "failed"
	}
}
