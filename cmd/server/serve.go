package main

import (
	"github.com/spf13/cobra"

	"github.com/photonchat/photon/pkg/server"
	"github.com/photonchat/photon/pkg/version"
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *options) error {
	cfg, err := opts.config(cmd)
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("starting photon", "version", version.String(), "config", opts.configPath, "db", cfg.DBFile)
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	srv := server.New(cfg, server.Dependencies{Store: st, Logger: logger})
	return srv.Run()
}
