package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: test.sqlite\n")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "crms" || cfg.Notifier.Driver != NotifierMemory {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Store.PollInterval != 2*time.Second || cfg.Console.AutoStatusInterval != time.Minute {
		t.Fatalf("intervals = %v %v", cfg.Store.PollInterval, cfg.Console.AutoStatusInterval)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := writeConfig(t, `database:
  dsn: test.sqlite
store:
  poll_interval: 500ms
notifier:
  driver: NATS
  nats_url: nats://broker:4222
identity:
  technician_id: " tech-7 "
`)
	t.Setenv("CRMS_HTTP_ADDR", "0.0.0.0:9000")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Store.PollInterval)
	}
	if cfg.Notifier.Driver != NotifierNATS || cfg.Notifier.NATSURL != "nats://broker:4222" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
	if cfg.Identity.TechnicianID != "tech-7" {
		t.Fatalf("technician = %q", cfg.Identity.TechnicianID)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "unknown notifier", body: "database:\n  dsn: x.sqlite\nnotifier:\n  driver: kafka\n"},
		{name: "negative poll", body: "database:\n  dsn: x.sqlite\nstore:\n  poll_interval: -1s\n"},
		{name: "empty dsn", body: "database:\n  dsn: \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(context.Background(), writeConfig(t, tc.body)); err == nil {
				t.Fatalf("Load() expected error")
			}
		})
	}
}
