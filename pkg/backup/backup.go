// Package backup uploads consistent database snapshots to S3-compatible
// object storage.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Snapshotter writes a consistent copy of the database to dest.
type Snapshotter interface {
	Snapshot(ctx context.Context, dest string) error
}

// Uploader is the subset of the S3 client used for backups.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the destination bucket and how to reach it.
type Config struct {
	Bucket    string
	Prefix    string // object key prefix, e.g. "photon/"
	Region    string
	Endpoint  string // custom endpoint for MinIO and friends; empty = AWS
	PathStyle bool

	// Static credentials. When empty the standard AWS_* environment
	// variables are used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return s3.New(s3.Options{
		Region:       region,
		Credentials:  aws.NewCredentialsCache(credentials(cfg)),
		UsePathStyle: cfg.PathStyle,
		BaseEndpoint: optional(cfg.Endpoint),
		// some S3-compatible gateways reject the default checksums
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
}

func credentials(cfg Config) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			Source:          "photon",
		}
		if creds.AccessKeyID == "" {
			creds.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
			creds.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
			creds.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
			creds.Source = "environment"
		}
		if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return aws.Credentials{}, fmt.Errorf("backup: no S3 credentials configured")
		}
		return creds, nil
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// ObjectKey names the snapshot taken at t.
func ObjectKey(prefix string, t time.Time) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "photon-" + t.UTC().Format("20060102T150405Z") + ".db"
}

// Result describes an uploaded snapshot.
type Result struct {
	Bucket string
	Key    string
	Size   int64
}

// Run snapshots store into a temporary file and uploads it to bucket/key.
func Run(ctx context.Context, store Snapshotter, up Uploader, bucket, key string, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		return Result{}, fmt.Errorf("backup: missing bucket")
	}

	dir, err := os.MkdirTemp("", "photon-backup-")
	if err != nil {
		return Result{}, fmt.Errorf("backup: temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "snapshot.db")
	start := time.Now()
	if err := store.Snapshot(ctx, path); err != nil {
		return Result{}, fmt.Errorf("backup: snapshot: %w", err)
	}

	f, err := os.Open(path) //nolint:gosec // path is inside our temp dir
	if err != nil {
		return Result{}, fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("backup: stat snapshot: %w", err)
	}

	_, err = up.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("backup: upload s3://%s/%s: %w", bucket, key, err)
	}

	res := Result{Bucket: bucket, Key: key, Size: info.Size()}
	logger.Info("backup uploaded", "bucket", bucket, "key", key, "bytes", res.Size, "took", time.Since(start))
	return res, nil
}
