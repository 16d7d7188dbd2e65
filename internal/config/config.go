// Package config holds the server's startup configuration, populated
// from command-line flags the way cmd/relic's cobra commands read them.
package config

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/relic/pkg/log"
)

// Config is everything cmd/relic's serve command needs to boot the
// Lifecycle Engine and its HTTP surface.
type Config struct {
	DataDir    string // bbolt database directory
	BlobsDir   string // filesystem blob store root
	TypesDir   string // directory of additional *.yaml type modules
	ListenAddr string
	LogLevel   log.Level
	LogJSON    bool
	MaxBodyMB  int64
}

// DefaultListenAddr, DefaultDataDir, and DefaultBlobsDir match the
// values cmd/relic registers as flag defaults.
const (
	DefaultListenAddr = ":8080"
	DefaultDataDir    = "/var/lib/relic/db"
	DefaultBlobsDir   = "/var/lib/relic/blobs"
	DefaultMaxBodyMB  = 64
)

// RegisterFlags attaches every config flag to cmd's persistent flag set
// with its default value.
func RegisterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("data-dir", DefaultDataDir, "Directory for the artifact database")
	cmd.PersistentFlags().String("blobs-dir", DefaultBlobsDir, "Directory for blob byte storage")
	cmd.PersistentFlags().String("types-dir", "", "Directory of additional artifact type YAML modules")
	cmd.PersistentFlags().String("listen-addr", DefaultListenAddr, "HTTP listen address")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Int64("max-body-mb", DefaultMaxBodyMB, "Maximum request body size in megabytes")
}

// FromFlags reads every registered flag off cmd into a Config.
func FromFlags(cmd *cobra.Command) (Config, error) {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return Config{}, err
	}
	blobsDir, err := cmd.Flags().GetString("blobs-dir")
	if err != nil {
		return Config{}, err
	}
	typesDir, err := cmd.Flags().GetString("types-dir")
	if err != nil {
		return Config{}, err
	}
	listenAddr, err := cmd.Flags().GetString("listen-addr")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return Config{}, err
	}
	maxBodyMB, err := cmd.Flags().GetInt64("max-body-mb")
	if err != nil {
		return Config{}, err
	}

	return Config{
		DataDir:    dataDir,
		BlobsDir:   blobsDir,
		TypesDir:   typesDir,
		ListenAddr: listenAddr,
		LogLevel:   log.Level(logLevel),
		LogJSON:    logJSON,
		MaxBodyMB:  maxBodyMB,
	}, nil
}
