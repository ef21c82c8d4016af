package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SavedServer is a remembered server connection. Credentials are never saved.
type SavedServer struct {
	Name     string    `yaml:"name"`
	Addr     string    `yaml:"addr"` // host:port, or a ws:// or wss:// URL
	Username string    `yaml:"username"`
	LastUsed time.Time `yaml:"last_used,omitempty"`
}

// IsWebSocket reports whether Addr is a WebSocket URL.
func (s SavedServer) IsWebSocket() bool {
	return strings.HasPrefix(s.Addr, "ws://") || strings.HasPrefix(s.Addr, "wss://")
}

// Dial connects to the saved server over the matching transport.
func (s SavedServer) Dial(ctx context.Context, h Handler) (*Client, error) {
	if s.IsWebSocket() {
		return DialWebSocket(ctx, s.Addr, h)
	}
	return Dial(ctx, s.Addr, h)
}

// ServerList is the YAML file of saved servers.
type ServerList struct {
	path    string
	Servers []SavedServer `yaml:"servers"`
}

// NewServerList creates a list backed by path. Call Load to read it.
func NewServerList(path string) *ServerList {
	return &ServerList{path: path}
}

// Load reads the list from disk. A missing file is an empty list.
func (l *ServerList) Load() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.Servers = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("client: read server list: %w", err)
	}
	if err := yaml.Unmarshal(data, l); err != nil {
		return fmt.Errorf("client: parse server list: %w", err)
	}
	return nil
}

// Save writes the list to disk.
func (l *ServerList) Save() error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("client: create server list dir: %w", err)
	}
	return os.WriteFile(l.path, data, 0o600)
}

// Upsert adds s or replaces the entry with the same address and username.
// It reports whether s was new.
func (l *ServerList) Upsert(s SavedServer) bool {
	if i := l.index(s.Addr, s.Username); i >= 0 {
		l.Servers[i] = s
		return false
	}
	l.Servers = append(l.Servers, s)
	return true
}

// Touch records a successful login.
func (l *ServerList) Touch(addr, username string, at time.Time) bool {
	i := l.index(addr, username)
	if i < 0 {
		return false
	}
	l.Servers[i].LastUsed = at
	return true
}

// Find returns the entry for addr and username.
func (l *ServerList) Find(addr, username string) (SavedServer, bool) {
	i := l.index(addr, username)
	if i < 0 {
		return SavedServer{}, false
	}
	return l.Servers[i], true
}

// Recent returns the entries, most recently used first.
func (l *ServerList) Recent() []SavedServer {
	out := slices.Clone(l.Servers)
	slices.SortStableFunc(out, func(a, b SavedServer) int {
		return cmp.Compare(b.LastUsed.UnixNano(), a.LastUsed.UnixNano())
	})
	return out
}

func (l *ServerList) index(addr, username string) int {
	return slices.IndexFunc(l.Servers, func(s SavedServer) bool {
		return s.Addr == addr && s.Username == username
	})
}
