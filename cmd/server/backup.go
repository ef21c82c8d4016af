package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/photonchat/photon/pkg/backup"
)

func backupCmd(opts *options) *cobra.Command {
	var bc backup.Config
	var key string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Upload a database snapshot to S3",
		Long: `Take a consistent snapshot of the database and upload it to an
S3-compatible bucket. Credentials come from --access-key/--secret-key or
the AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY environment variables.`,
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

			if key == "" {
				key = backup.ObjectKey(bc.Prefix, time.Now())
			}
			res, err := backup.Run(cmd.Context(), st, backup.NewS3Client(bc), bc.Bucket, key, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s (%d bytes)\n", res.Bucket, res.Key, res.Size)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&bc.Bucket, "bucket", "", "destination bucket (required)")
	f.StringVar(&bc.Prefix, "prefix", "photon/", "object key prefix")
	f.StringVar(&key, "key", "", "object key (default: <prefix>photon-<timestamp>.db)")
	f.StringVar(&bc.Region, "region", "", "bucket region (default: $AWS_REGION or us-east-1)")
	f.StringVar(&bc.Endpoint, "endpoint", "", "custom S3 endpoint URL")
	f.BoolVar(&bc.PathStyle, "path-style", false, "use path-style addressing")
	f.StringVar(&bc.AccessKeyID, "access-key", "", "access key id")
	f.StringVar(&bc.SecretAccessKey, "secret-key", "", "secret access key")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}
