// Package config loads patron configuration from file and environment.
//
// Configuration is read from patron.yaml (searched in the working directory
// and ~/.patron), overridable with PATRON_* environment variables. The
// config file can be watched so a venue change re-activates the scheduler
// without a restart.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// RemoteURL is the base URL of the directory service. Empty means
	// offline-only: lookups and check-ins work, sync does not.
	RemoteURL string `mapstructure:"remote_url"`

	// RemoteToken authenticates against the directory service.
	RemoteToken string `mapstructure:"remote_token"`

	// VenueID scopes all cached and queued data.
	VenueID string `mapstructure:"venue_id"`

	// DBPath is where the cache database lives.
	DBPath string `mapstructure:"db_path"`

	// SyncInterval is the periodic sync/replay cadence.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// PageSize is the remote fetch page size.
	PageSize int `mapstructure:"page_size"`

	// DashboardPort serves status and the event stream in daemon mode.
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile, when set, routes daemon logs through a rotating file.
	LogFile string `mapstructure:"log_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", ".patron/cache.db")
	v.SetDefault("sync_interval", 15*time.Minute)
	v.SetDefault("page_size", 100)
	v.SetDefault("dashboard_port", 8484)
}

// Load reads configuration from the given file path, or from the default
// search locations when path is empty. A missing config file is not an
// error; defaults and environment variables still apply.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PATRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("patron")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.patron")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, v, nil
}

// Watch re-reads the config on file changes and invokes onVenueChange when
// the selected venue differs from the current one. The viper instance must
// be the one returned by Load.
func Watch(v *viper.Viper, current *Config, onVenueChange func(venueID string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			return
		}
		if next.VenueID != "" && next.VenueID != current.VenueID {
			current.VenueID = next.VenueID
			onVenueChange(next.VenueID)
		}
	})
	v.WatchConfig()
}
