package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/migrate"
	"github.com/tillpoint/patron/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the venue's cached customers as JSONL",
	Long: `Write the selected venue's cached customers to a JSONL file, one
record per line. With no file argument the export goes to stdout.

Use this to back up a venue before "patron clear", or to seed a new
device without a full remote fetch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		toFile := len(args) == 1
		if toFile {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			out = f
		}

		result, err := migrate.ExportJSONL(context.Background(), st, venue, out)
		if err != nil {
			return err
		}

		if toFile {
			fmt.Printf("%s Exported %d customers to %s\n",
				ui.RenderPass("✓"), result.RecordsWritten, args[0])
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import customers from a JSONL export",
	Long: `Load customer records from a JSONL file into the selected venue's
cache. Existing records with the same remote id are replaced. Malformed
lines are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open import file: %w", err)
		}
		defer f.Close()

		result, err := migrate.ImportJSONL(context.Background(), st, venue, f)
		if err != nil {
			return err
		}

		fmt.Printf("%s Imported %d of %d customers\n",
			ui.RenderPass("✓"), result.RecordsApplied, result.RecordsRead)
		for _, e := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("skipped:"), e)
		}
		return nil
	},
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the venue's cached customers",
	Long: `Delete every cached customer for the selected venue along with its
sync checkpoint, forcing the next sync to be a full re-import. Queued
check-ins are kept.

Requires --yes; consider "patron export" first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}
		if !clearYes {
			return fmt.Errorf("refusing to clear venue %s without --yes", venue)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		count, _ := st.CountByVenue(venue)
		if err := st.ClearVenue(venue); err != nil {
			return err
		}

		fmt.Printf("%s Cleared %d cached customers for venue %s\n",
			ui.RenderPass("✓"), count, venue)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm the wipe")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(clearCmd)
}
