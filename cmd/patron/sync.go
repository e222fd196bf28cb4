package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/syncer"
	"github.com/tillpoint/patron/internal/ui"
)

var syncFull bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the customer directory into the local cache",
	Long: `Run one sync pass against the remote directory.

By default this is an incremental pass covering records updated since the
last successful sync; a venue with no checkpoint gets a full pass
automatically. Use --full to force a complete re-fetch.

Each page is written to the cache as it arrives, so an interrupted pass
keeps its partial progress. The checkpoint only advances when every page
succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}

		client := remoteClient()
		if client == nil {
			return fmt.Errorf("no remote configured: set remote_url in config")
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		engineCfg := syncer.DefaultConfig()
		engineCfg.PageSize = cfg.PageSize
		engineCfg.OnProgress = func(venueID string, p syncer.Progress) {
			fmt.Printf("\r   Synced %d/%d", p.Current, p.Total)
		}
		engine := syncer.New(st, client, engineCfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		kind := "incremental"
		if syncFull {
			kind = "full"
		}
		fmt.Printf("%s Starting %s sync for venue %s...\n", ui.RenderAccent("🔄"), kind, venue)
		start := time.Now()

		if syncFull {
			err = engine.FullSync(ctx, venue)
		} else {
			err = engine.IncrementalSync(ctx, venue)
		}
		fmt.Println()
		if err != nil {
			return err
		}

		count, _ := st.CountByVenue(venue)
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Customers cached: %d\n", count)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache and sync status",
	Long: `Display the state of the local cache for the selected venue:
customer count, pending check-ins, and the last successful sync.`,
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

		count, err := st.CountByVenue(venue)
		if err != nil {
			return err
		}
		pending, err := st.CountUnsyncedOutbox(venue)
		if err != nil {
			return err
		}
		last, err := st.LastSync(venue)
		if err != nil {
			return err
		}

		fmt.Printf("Venue:             %s\n", ui.RenderAccent(venue))
		fmt.Printf("Customers cached:  %d\n", count)
		fmt.Printf("Pending check-ins: %d\n", pending)
		if last != nil {
			fmt.Printf("Last sync:         %s (%s ago)\n",
				last.Local().Format(time.RFC1123),
				time.Since(*last).Round(time.Second))
		} else {
			fmt.Printf("Last sync:         %s\n", ui.RenderDim("never"))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "force a full directory re-fetch")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
