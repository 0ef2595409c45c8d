package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func newUDPCapture(t *testing.T) (string, func() string) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	read := func() string {
		t.Helper()
		buf := make([]byte, 1024)
		if err := pc.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read datagram: %v", err)
		}
		return string(buf[:n])
	}

	return pc.LocalAddr().String(), read
}

func TestClientEmitsLineProtocol(t *testing.T) {
	t.Parallel()

	addr, read := newUDPCapture(t)

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    addr,
		Prefix:     "dispatch",
		GlobalTags: map[string]string{"backend": "snapshot"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("job.transition", 1, map[string]string{"transition": "submit"})
	if got, want := read(), "dispatch.job.transition:1|c|#backend:snapshot,transition:submit"; got != want {
		t.Fatalf("count line = %q, want %q", got, want)
	}

	client.Gauge("engines.idle", 3, nil)
	if got, want := read(), "dispatch.engines.idle:3|g|#backend:snapshot"; got != want {
		t.Fatalf("gauge line = %q, want %q", got, want)
	}

	client.Timing("reaper.sweep_duration", 1500*time.Millisecond, nil)
	if got, want := read(), "dispatch.reaper.sweep_duration:1500|ms|#backend:snapshot"; got != want {
		t.Fatalf("timing line = %q, want %q", got, want)
	}
}

func TestClientLocalTagsOverrideGlobal(t *testing.T) {
	t.Parallel()

	addr, read := newUDPCapture(t)

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    addr,
		GlobalTags: map[string]string{"backend": "snapshot"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("jobs.active", 2, map[string]string{"backend": "sqlite"})
	if got, want := read(), "jobs.active:2|c|#backend:sqlite"; got != want {
		t.Fatalf("count line = %q, want %q", got, want)
	}
}

func TestCleanMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/metric ":    "job_metric",
		"foo..bar":        "foo.bar",
		"multi space":     "multi_space",
		"queue:depth|now": "queue_depth_now",
		".lead.trail.":    "lead.trail",
		"...":             "",
		"":                "",
	}

	for input, want := range tests {
		if got := cleanMetricName(input); got != want {
			t.Fatalf("cleanMetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTagSuffixScrubsAndSorts(t *testing.T) {
	t.Parallel()

	client := &Client{globalTags: cleanTags(map[string]string{
		"env":      "prod",
		" region ": " us-east ",
	})}

	got := client.tagSuffix(map[string]string{
		"env":    "stage",
		"":       "dropped",
		"status": "a,b|c",
	})
	want := "|#env:stage,region:us-east,status:a_b_c"
	if got != want {
		t.Fatalf("tagSuffix mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := client.tagSuffix(nil); !strings.HasPrefix(got, "|#env:prod") {
		t.Fatalf("expected global tags alone, got %q", got)
	}

	empty := &Client{}
	if got := empty.tagSuffix(nil); got != "" {
		t.Fatalf("expected empty suffix without tags, got %q", got)
	}
}

func TestNewClientCopiesGlobalTags(t *testing.T) {
	t.Parallel()

	tags := map[string]string{"backend": "snapshot"}
	client, err := NewClient(Config{GlobalTags: tags})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	tags["backend"] = "mutated"
	if got, want := client.tagSuffix(nil), "|#backend:snapshot"; got != want {
		t.Fatalf("tagSuffix = %q, want %q", got, want)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	// Emission after Close must be a silent no-op.
	client.Count("jobs", 1, nil)

	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()

	var client *Client
	client.Count("jobs", 1, nil)
	client.Gauge("jobs", 1, nil)
	client.Timing("jobs", time.Second, nil)

	if client.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}

	// Emitting on a disabled client must not panic.
	client.Count("jobs", 1, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
