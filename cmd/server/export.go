package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/photonchat/photon/pkg/server"
)

func exportUsersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export-users",
		Short: "Print every account as YAML",
		Long:  `Print every registered account (id, name, admin flag) as YAML. Credentials are never exported.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			data, err := server.ExportUsersYAML(cmd.Context(), st)
			if err != nil {
				return fmt.Errorf("export users: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
