// Command patron keeps a point-of-sale customer directory usable offline.
//
// It mirrors the remote directory into a local SQLite cache, queues
// check-ins durably while disconnected, and replays them once the remote
// is reachable again.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tillpoint/patron/internal/config"
	"github.com/tillpoint/patron/internal/remote"
	"github.com/tillpoint/patron/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgV    *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "patron",
	Short: "Offline-resilient customer directory cache",
	Long: `patron mirrors a remote customer directory into a local cache so a
point-of-sale terminal keeps working when the network doesn't.

Customer lookups always hit the local cache. Check-ins are submitted live
when possible and queued durably when not; queued check-ins replay
automatically on the next sync tick.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, cfgV, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./patron.yaml or ~/.patron/patron.yaml)")
	rootCmd.PersistentFlags().String("venue", "", "venue id (overrides config)")
	rootCmd.PersistentFlags().String("db", "", "cache database path (overrides config)")
}

// activeVenue resolves the venue from flag or config.
func activeVenue(cmd *cobra.Command) (string, error) {
	if v, _ := cmd.Flags().GetString("venue"); v != "" {
		return v, nil
	}
	if cfg.VenueID != "" {
		return cfg.VenueID, nil
	}
	return "", fmt.Errorf("no venue selected: set venue_id in config or pass --venue")
}

// openStore opens the cache database and initializes its schema.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	path := cfg.DBPath
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		path = p
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// remoteClient builds the directory client, or nil when none is configured.
func remoteClient() remote.Client {
	if cfg.RemoteURL == "" {
		return nil
	}
	return remote.NewHTTPClient(cfg.RemoteURL, cfg.RemoteToken)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
