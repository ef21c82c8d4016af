package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestLoadConfigFileCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "photon.yaml")
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	reloaded, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(cfg, reloaded); diff != "" {
		t.Fatalf("reload mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photon.yaml")
	data := []byte("port: 7000\nhandshakeTimeout: 30s\nrestrictAdminQueries: true\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	want := DefaultConfig()
	want.Port = 7000
	want.HandshakeTimeout = 30 * time.Second
	want.RestrictAdminQueries = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	type tcase struct {
		mutate  func(*Config)
		wantErr bool
	}
	tests := map[string]tcase{
		"defaults":         {mutate: func(*Config) {}},
		"bad port":         {mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		"tiny frames":      {mutate: func(c *Config) { c.MaxTransmissionSize = HistorySafetyMargin }, wantErr: true},
		"negative timeout": {mutate: func(c *Config) { c.HandshakeTimeout = -time.Second }, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestExportUsersYAML(t *testing.T) {
	_, st, _ := newTestServer(t, nil)
	ctx := context.Background()
	alice, err := st.AddUser(ctx, "alice", "hash-alice")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	bob, err := st.AddUser(ctx, "bob", "hash-bob")
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := st.SetAdminStatus(ctx, bob.ID, true); err != nil {
		t.Fatalf("SetAdminStatus: %v", err)
	}

	data, err := ExportUsersYAML(ctx, st)
	if err != nil {
		t.Fatalf("ExportUsersYAML: %v", err)
	}
	var got UsersExport
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := UsersExport{Users: []UserYAML{
		{ID: alice.ID, Username: "alice"},
		{ID: bob.ID, Username: "bob", Admin: true},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("export mismatch (-want +got):\n%s", diff)
	}
}
