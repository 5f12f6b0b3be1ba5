package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and captures line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu     sync.Mutex
	lines  []string
	writes chan struct{}
	status int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writes: make(chan struct{}, 16), status: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			status := f.status
			f.mu.Unlock()
			w.WriteHeader(status)
			f.writes <- struct{}{}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) captured() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) waitForWrite(t *testing.T) {
	t.Helper()
	select {
	case <-f.writes:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for write request")
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "bambi-test-token",
		Org:           "bambi",
		Bucket:        "printer",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestWriteTelemetry(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteTelemetry(influxdb.Telemetry{
		Printer:    "01S00A",
		BedTemp:    44,
		TargetTemp: 60,
		Percent:    85,
		Status:     "RUNNING",
	})
	client.Flush()
	f.waitForWrite(t)

	lines := f.captured()
	if len(lines) != 1 {
		t.Fatalf("captured %d lines, want 1: %v", len(lines), lines)
	}
	line := lines[0]
	for _, want := range []string{
		"printer_telemetry,printer=01S00A ",
		"bed_temp=44",
		"target_temp=60",
		"percent=85i",
		`status="RUNNING"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteDoorEvent(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteDoorEvent("01S00A", "door_opened", "DOOR_OPEN")
	client.Flush()
	f.waitForWrite(t)

	lines := f.captured()
	if len(lines) != 1 {
		t.Fatalf("captured %d lines, want 1", len(lines))
	}
	for _, want := range []string{"door_events,", "event=door_opened", "printer=01S00A", `phase="DOOR_OPEN"`} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
}

func TestWrite_AfterCloseIsDropped(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WriteTelemetry(influxdb.Telemetry{Printer: "01S00A"})
	client.Flush()

	if lines := f.captured(); len(lines) != 0 {
		t.Errorf("captured %d lines after Close, want 0", len(lines))
	}
}

func TestSetOnError(t *testing.T) {
	f := newFakeInflux(t)
	f.status = http.StatusBadRequest

	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WriteDoorEvent("01S00A", "door_closed", "WAITING")
	client.Flush()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("onError received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for async write error")
	}
}

func TestClose_Nil(t *testing.T) {
	var c influxdb.Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
