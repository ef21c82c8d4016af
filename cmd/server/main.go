package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/logging"
	"github.com/photonchat/photon/pkg/server"
)

// options holds the flags shared by every subcommand. Flags that were set
// explicitly override the config file.
type options struct {
	configPath string
	listenHost string
	port       int
	dbFile     string
	httpAddr   string
	logLevel   string
	logFormat  string
	logFile    string
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "photon",
		Short: "Persistent chat server",
		Long: `Photon is a persistent multi-user chat server.

Clients connect over TCP (or WebSocket on /ws), register, log in and
exchange public messages and whispers. Messages are stored in SQLite.
Running photon without a subcommand starts the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "photon.yaml", "YAML config file (created with defaults if missing)")
	pf.StringVar(&opts.listenHost, "host", "", "chat listener host")
	pf.IntVarP(&opts.port, "port", "p", 0, "chat listener port")
	pf.StringVar(&opts.dbFile, "db", "", "SQLite database file")
	pf.StringVar(&opts.httpAddr, "http", "", "HTTP bind address for /metrics, /healthz and /ws (\"off\" to disable)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: "+logging.LevelNames())
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&opts.logFile, "log-file", "", "also append logs to this file")

	rootCmd.AddCommand(
		serveCmd(opts),
		exportUsersCmd(opts),
		backupCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "photon: %s\n", err)
		os.Exit(1)
	}
}

// config loads the config file and applies explicitly set flags.
func (o *options) config(cmd *cobra.Command) (server.Config, error) {
	cfg, err := server.LoadConfigFile(o.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.ListenHost = o.listenHost
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("db") {
		cfg.DBFile = o.dbFile
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = o.httpAddr
		if cfg.HTTPAddr == "off" {
			cfg.HTTPAddr = ""
		}
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	return cfg, cfg.Validate()
}

// setupLogging installs the process logger. The returned func closes the
// log file, if any.
func setupLogging(cfg server.Config) (*slog.Logger, func(), error) {
	return logging.Setup(logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		QuietInfo: !cfg.InfoLoggingEnabled,
	})
}

func openStore(cfg server.Config, logger *slog.Logger) (*datastore.Engine, error) {
	st, err := datastore.Open(cfg.DBFile, datastore.Options{
		WriteQueueSize:   cfg.WriteQueueSize,
		HistoryLoadCount: cfg.HistoryLoadCount,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}
