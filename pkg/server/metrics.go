package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP and WebSocket)
	ActiveConnections atomic.Int64 // current open connections
	FailedAuths       atomic.Int64 // rejected logins
	SuccessfulAuths   atomic.Int64 // accepted logins
	Registrations     atomic.Int64 // accounts created
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Traffic counters
	PacketsIn      atomic.Int64 // packets decoded from clients
	MessagesSent   atomic.Int64 // public messages persisted and broadcast
	WhispersSent   atomic.Int64 // direct messages delivered
	CommandsRun    atomic.Int64 // slash commands handled
	HistoryReplays atomic.Int64 // MESSAGE_LIST replays sent

	// Moderation counters
	MessagesEdited  atomic.Int64
	MessagesDeleted atomic.Int64
	ReportsFiled    atomic.Int64

	// Fault counters
	ProtocolErrors atomic.Int64
	StorageFaults  atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	Registrations     int64 `json:"registrations"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	PacketsIn      int64 `json:"packets_in"`
	MessagesSent   int64 `json:"messages_sent"`
	WhispersSent   int64 `json:"whispers_sent"`
	CommandsRun    int64 `json:"commands_run"`
	HistoryReplays int64 `json:"history_replays"`

	MessagesEdited  int64 `json:"messages_edited"`
	MessagesDeleted int64 `json:"messages_deleted"`
	ReportsFiled    int64 `json:"reports_filed"`

	ProtocolErrors int64 `json:"protocol_errors"`
	StorageFaults  int64 `json:"storage_faults"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		Registrations:     m.Registrations.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		PacketsIn:         m.PacketsIn.Load(),
		MessagesSent:      m.MessagesSent.Load(),
		WhispersSent:      m.WhispersSent.Load(),
		CommandsRun:       m.CommandsRun.Load(),
		HistoryReplays:    m.HistoryReplays.Load(),
		MessagesEdited:    m.MessagesEdited.Load(),
		MessagesDeleted:   m.MessagesDeleted.Load(),
		ReportsFiled:      m.ReportsFiled.Load(),
		ProtocolErrors:    m.ProtocolErrors.Load(),
		StorageFaults:     m.StorageFaults.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"messages", s.MessagesSent,
		"whispers", s.WhispersSent,
		"protocol_errors", s.ProtocolErrors,
		"storage_faults", s.StorageFaults,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(logger *slog.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(logger)
			}
		}
	}()
}

// Register exposes the counters on reg under the photon namespace. The
// collectors read the atomics at scrape time.
func (m *Metrics) Register(reg prometheus.Registerer) {
	factory := promauto.With(reg)
	counter := func(name, help string, v *atomic.Int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "photon",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	gauge := func(name, help string, fn func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "photon",
			Name:      name,
			Help:      help,
		}, fn)
	}

	gauge("uptime_seconds", "Server uptime in seconds.", func() float64 { return time.Since(m.startTime).Seconds() })
	gauge("connections_active", "Current open connections.", func() float64 { return float64(m.ActiveConnections.Load()) })
	counter("connections_total", "Lifetime connections accepted.", &m.TotalConnections)
	counter("disconnects_total", "Total client disconnects.", &m.TotalDisconnects)
	counter("auth_success_total", "Accepted logins.", &m.SuccessfulAuths)
	counter("auth_failed_total", "Rejected logins.", &m.FailedAuths)
	counter("registrations_total", "Accounts created.", &m.Registrations)
	counter("packets_in_total", "Packets received from clients.", &m.PacketsIn)
	counter("messages_total", "Public messages relayed.", &m.MessagesSent)
	counter("whispers_total", "Direct messages relayed.", &m.WhispersSent)
	counter("commands_total", "Slash commands handled.", &m.CommandsRun)
	counter("history_replays_total", "History replays sent.", &m.HistoryReplays)
	counter("messages_edited_total", "Messages edited.", &m.MessagesEdited)
	counter("messages_deleted_total", "Messages deleted.", &m.MessagesDeleted)
	counter("reports_total", "Reports filed.", &m.ReportsFiled)
	counter("protocol_errors_total", "Protocol errors answered.", &m.ProtocolErrors)
	counter("storage_faults_total", "Storage faults answered.", &m.StorageFaults)
}

// newRegistry builds the registry served on /metrics.
func (s *Server) newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics.Register(reg)

	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "photon",
		Name:      "users_online",
		Help:      "Logged-in users.",
	}, func() float64 { return float64(len(s.presence.Roster())) })
	if s.store != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "photon",
			Name:      "write_queue_length",
			Help:      "Mutations waiting for the storage writer.",
		}, func() float64 { return float64(s.store.QueueLen()) })
	}
	return reg
}
