package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.TotalConnections.Add(3)
	m.MessagesSent.Add(2)
	m.ProtocolErrors.Add(1)

	var snap MetricsSnapshot
	if err := json.Unmarshal([]byte(m.JSON()), &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if snap.TotalConnections != 3 || snap.MessagesSent != 2 || snap.ProtocolErrors != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHTTPHandler(t *testing.T) {
	srv, _, addr := newTestServer(t, nil)
	alice := dialTest(t, addr)
	alice.join("alice")
	alice.say("hi")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	code, body := get(t, ts.URL+"/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz = %d %q", code, body)
	}

	code, body = get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	for _, want := range []string{
		"photon_connections_total 1",
		"photon_connections_active 1",
		"photon_messages_total 1",
		"photon_users_online 1",
		"photon_write_queue_length",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
