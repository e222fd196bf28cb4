package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tillpoint/patron/internal/checkin"
	"github.com/tillpoint/patron/internal/config"
	"github.com/tillpoint/patron/internal/dashboard"
	"github.com/tillpoint/patron/internal/scheduler"
	"github.com/tillpoint/patron/internal/store"
	"github.com/tillpoint/patron/internal/syncer"
	"gopkg.in/natefinch/lumberjack.v2"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync service",
	Long: `Run patron as a long-lived service.

The daemon bootstraps a sync pass for the configured venue, replays any
queued check-ins, and then repeats both on a fixed interval. A small HTTP
server exposes GET /status and a websocket event stream at /events for
progress indicators.

Editing the config file to select a different venue re-activates the
scheduler without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := activeVenue(cmd)
		if err != nil {
			return err
		}

		var logOut io.Writer = os.Stderr
		if cfg.LogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    20, // megabytes
				MaxBackups: 5,
				MaxAge:     28, // days
				Compress:   true,
			}
		}
		newLogger := func(prefix string) *log.Logger {
			return log.New(logOut, prefix, log.LstdFlags)
		}
		daemonLog := newLogger("[daemon] ")

		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		client := remoteClient()
		if client == nil {
			daemonLog.Println("No remote configured; running offline-only")
		}

		// The status closure captures the engine and scheduler declared
		// below; both exist before the server starts serving.
		var (
			engine *syncer.Engine
			sched  *scheduler.Scheduler
		)
		srv := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.DashboardPort,
			Logger: newLogger("[dashboard] "),
			Status: func(ctx context.Context) (any, error) {
				return buildStatus(ctx, st, engine, sched.Venue())
			},
		})
		events := dashboard.NewHandler(srv, newLogger("[events] "))

		engine = syncer.New(st, client, &syncer.Config{
			PageSize:   cfg.PageSize,
			Logger:     newLogger("[syncer] "),
			OnProgress: events.OnSyncProgress,
			OnComplete: events.OnSyncComplete,
		})

		checkins := checkin.New(st, client, &checkin.Config{
			Logger:     newLogger("[checkin] "),
			OnDeferred: events.OnCheckInDeferred,
			OnReplayed: events.OnReplayComplete,
		})

		sched = scheduler.New(engine, checkins, &scheduler.Config{
			Interval: cfg.SyncInterval,
			Logger:   newLogger("[scheduler] "),
		})

		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()

		sched.Activate(venue)
		defer sched.Stop()

		// A venue change in the config file swaps the active venue.
		config.Watch(cfgV, cfg, func(venueID string) {
			daemonLog.Printf("Venue changed to %s", venueID)
			sched.Activate(venueID)
		})

		fmt.Printf("patron daemon running (venue %s, dashboard %s)\n", venue, srv.Addr())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		fmt.Println("Shutting down...")
		return nil
	},
}

// daemonStatus is the GET /status payload.
type daemonStatus struct {
	Venue           string           `json:"venue"`
	IsSyncing       bool             `json:"is_syncing"`
	State           string           `json:"state"`
	Progress        *syncer.Progress `json:"progress,omitempty"`
	CustomerCount   int              `json:"customer_count"`
	PendingCheckIns int              `json:"pending_check_ins"`
	LastSync        *time.Time       `json:"last_sync,omitempty"`
}

func buildStatus(ctx context.Context, st *store.Store, engine *syncer.Engine, venue string) (*daemonStatus, error) {
	count, err := st.CountByVenueContext(ctx, venue)
	if err != nil {
		return nil, err
	}
	pending, err := st.CountUnsyncedOutboxContext(ctx, venue)
	if err != nil {
		return nil, err
	}

	snap := engine.Status(venue)
	return &daemonStatus{
		Venue:           venue,
		IsSyncing:       snap.IsSyncing,
		State:           snap.State.String(),
		Progress:        snap.Progress,
		CustomerCount:   count,
		PendingCheckIns: pending,
		LastSync:        snap.LastSync,
	}, nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
