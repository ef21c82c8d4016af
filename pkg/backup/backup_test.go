package backup_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/photonchat/photon/pkg/backup"
	"github.com/photonchat/photon/pkg/crypto"
	"github.com/photonchat/photon/pkg/datastore"
)

type fakeUploader struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeUploader) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

type failingSnapshotter struct{}

func (failingSnapshotter) Snapshot(context.Context, string) error { return errors.New("disk full") }

func TestRunUploadsSnapshot(t *testing.T) {
	st, err := datastore.Open(filepath.Join(t.TempDir(), "chat.db"), datastore.Options{
		PasswordParams: crypto.Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if _, err := st.AddUser(context.Background(), "alice", "hash"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	up := &fakeUploader{}
	res, err := backup.Run(context.Background(), st, up, "bucket", "photon/snap.db", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if up.bucket != "bucket" || up.key != "photon/snap.db" {
		t.Fatalf("uploaded to %s/%s", up.bucket, up.key)
	}
	if res.Size != int64(len(up.body)) || res.Size == 0 {
		t.Fatalf("result size %d, uploaded %d bytes", res.Size, len(up.body))
	}
	if !bytes.HasPrefix(up.body, []byte("SQLite format 3\x00")) {
		t.Fatal("upload is not a SQLite database")
	}
}

func TestRunErrors(t *testing.T) {
	type tcase struct {
		store  backup.Snapshotter
		up     *fakeUploader
		bucket string
	}
	tests := map[string]tcase{
		"missing bucket": {store: failingSnapshotter{}, up: &fakeUploader{}},
		"snapshot fails": {store: failingSnapshotter{}, up: &fakeUploader{}, bucket: "b"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := backup.Run(context.Background(), tc.store, tc.up, tc.bucket, "k", nil); err == nil {
				t.Fatal("Run succeeded")
			}
			if tc.up.key != "" {
				t.Fatal("uploaded despite failure")
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	type tcase struct {
		prefix string
		want   string
	}
	tests := map[string]tcase{
		"no prefix":      {prefix: "", want: "photon-20240506T070809Z.db"},
		"bare prefix":    {prefix: "backups", want: "backups/photon-20240506T070809Z.db"},
		"slashed prefix": {prefix: "backups/", want: "backups/photon-20240506T070809Z.db"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := backup.ObjectKey(tc.prefix, at); got != tc.want {
				t.Fatalf("ObjectKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewS3Client(t *testing.T) {
	c := backup.NewS3Client(backup.Config{Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000", PathStyle: true})
	opts := c.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://127.0.0.1:9000" {
		t.Fatalf("options = region %q path %v endpoint %q", opts.Region, opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}
}
