package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/photonchat/photon/pkg/datastore"
)

// LoadConfigFile reads a YAML config file over DefaultConfig. A missing file
// is created with the defaults so operators have something to edit.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if errors.Is(err, fs.ErrNotExist) {
		if err := WriteConfigFile(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// WriteConfigFile writes cfg as YAML to path, creating parent directories.
func WriteConfigFile(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID       int64  `yaml:"id"`
	Username string `yaml:"username"`
	Admin    bool   `yaml:"admin"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// ExportUsersYAML exports all accounts, without credentials, as YAML.
func ExportUsersYAML(ctx context.Context, st datastore.UserReadProvider) ([]byte, error) {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	export := UsersExport{Users: []UserYAML{}}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:       u.ID,
			Username: u.Name,
			Admin:    u.IsAdmin,
		})
	}
	return yaml.Marshal(&export)
}
