package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/checkin"
	"github.com/tillpoint/patron/internal/schema"
	"github.com/tillpoint/patron/internal/ui"
)

var (
	checkinName   string
	checkinPhone  string
	checkinMethod string
	checkinRef    int64
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Record a customer check-in",
	Long: `Record a check-in for the selected venue.

The check-in is submitted to the remote directory immediately when
possible. If the remote is unreachable (or none is configured) the
check-in is queued locally and delivered on the next sync tick; either
way it is never lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}
		if checkinName == "" {
			return fmt.Errorf("--name is required")
		}

		method := schema.CheckInMethod(checkinMethod)
		if !method.Valid() {
			return fmt.Errorf("unknown method %q (phone, guest, id_scan, app, walk_in)", checkinMethod)
		}

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		svc := checkin.New(st, remoteClient(), nil)

		req := checkin.Request{
			VenueID: venue,
			Name:    checkinName,
			Phone:   checkinPhone,
			Method:  method,
		}
		if checkinRef > 0 {
			req.CustomerRef = &checkinRef
		}

		result, err := svc.CheckIn(context.Background(), req)
		if err != nil {
			return err
		}

		if result.Confirmed {
			fmt.Printf("%s Check-in confirmed (remote id %d)\n", ui.RenderPass("✓"), result.RemoteID)
		} else {
			fmt.Printf("%s Check-in recorded and will sync when possible (queue id %d)\n",
				ui.RenderWarn("…"), result.OutboxID)
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay queued check-ins now",
	Long: `Attempt delivery of every queued check-in for the selected venue,
oldest first. Entries that fail stay queued for the next attempt.`,
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

		svc := checkin.New(st, client, nil)
		stats, err := svc.Replay(context.Background(), venue)
		if err != nil {
			return err
		}

		if stats.Attempted == 0 {
			fmt.Println("No pending check-ins")
			return nil
		}
		fmt.Printf("%s Delivered %d of %d queued check-ins", ui.RenderPass("✓"),
			stats.Delivered, stats.Attempted)
		if stats.Failed > 0 {
			fmt.Printf(" (%s)", ui.RenderWarn(fmt.Sprintf("%d still pending", stats.Failed)))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	checkinCmd.Flags().StringVar(&checkinName, "name", "", "customer name (required)")
	checkinCmd.Flags().StringVar(&checkinPhone, "phone", "", "customer phone")
	checkinCmd.Flags().StringVar(&checkinMethod, "method", "walk_in", "check-in method")
	checkinCmd.Flags().Int64Var(&checkinRef, "customer", 0, "matched customer remote id")
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(replayCmd)
}
