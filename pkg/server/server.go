// Package server implements the Photon chat server: connection sessions,
// packet dispatch, presence and broadcast.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/photonchat/photon/pkg/datastore"
	"github.com/photonchat/photon/pkg/model"
	"github.com/photonchat/photon/pkg/protocol"
)

// HistorySafetyMargin is reserved out of MaxTransmissionSize for the
// MESSAGE_LIST envelope when replaying history.
const HistorySafetyMargin = 1024

// Config holds server configuration. The yaml keys match the config file.
type Config struct {
	ListenHost           string        `yaml:"listenHost"`
	Port                 int           `yaml:"port"`
	DBFile               string        `yaml:"dbFile"`
	MaxTransmissionSize  int           `yaml:"maxTransmissionSize"` // largest frame in either direction, bytes
	InfoLoggingEnabled   bool          `yaml:"infoLoggingEnabled"`
	LogLevel             string        `yaml:"logLevel"`
	LogFormat            string        `yaml:"logFormat"`
	LogFile              string        `yaml:"logFile"` // empty = stdout only
	WriteQueueSize       int           `yaml:"writeQueueSize"`
	HistoryLoadCount     int           `yaml:"historyLoadCount"`
	HandshakeTimeout     time.Duration `yaml:"handshakeTimeout"` // 0 = wait forever for a login
	RestrictAdminQueries bool          `yaml:"restrictAdminQueries"`
	HTTPAddr             string        `yaml:"httpAddr"` // /metrics, /healthz, /ws; empty = disabled
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:                9999,
		DBFile:              "photon.db",
		MaxTransmissionSize: protocol.DefaultMaxPacketSize,
		InfoLoggingEnabled:  true,
		LogLevel:            "info",
		LogFormat:           "text",
		WriteQueueSize:      datastore.DefaultWriteQueueSize,
		HistoryLoadCount:    datastore.DefaultHistoryLoadCount,
		HTTPAddr:            ":9602",
	}
}

// ListenAddr returns the host:port the chat listener binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Port)
	}
	if c.MaxTransmissionSize <= HistorySafetyMargin {
		return fmt.Errorf("server: maxTransmissionSize must exceed %d bytes", HistorySafetyMargin)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("server: negative handshakeTimeout")
	}
	return nil
}

// Authenticator checks login credentials. The datastore satisfies it; tests
// and deployments may plug in their own.
type Authenticator interface {
	QueryLogin(ctx context.Context, name, secret string) (model.LoginResult, error)
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store         datastore.DataStore
	Authenticator Authenticator // defaults to Store
	Logger        *slog.Logger  // defaults to slog.Default()
	Now           func() time.Time
}

// Server is the Photon chat server.
type Server struct {
	cfg      Config
	store    datastore.DataStore
	auth     Authenticator
	presence *Presence
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *httpServer
	wg       sync.WaitGroup // live sessions

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.MaxTransmissionSize == 0 {
		cfg.MaxTransmissionSize = protocol.DefaultMaxPacketSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := deps.Authenticator
	if auth == nil {
		auth = deps.Store
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		store:    deps.Store,
		auth:     auth,
		presence: NewPresence(logger),
		metrics:  NewMetrics(),
		logger:   logger,
		tracer:   otel.Tracer("photon/server"),
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
	}
	return s
}

// Presence returns the registry of connected sessions.
func (s *Server) Presence() *Presence {
	return s.presence
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// historyBudget is the byte budget for one MESSAGE_LIST.
func (s *Server) historyBudget() int {
	return s.cfg.MaxTransmissionSize - HistorySafetyMargin
}
