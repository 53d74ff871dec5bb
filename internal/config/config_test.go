package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.QueueBackend != BackendRabbitMQ {
		t.Errorf("QueueBackend = %q", cfg.QueueBackend)
	}
	if cfg.MaxConcurrentDownloads != 3 {
		t.Errorf("MaxConcurrentDownloads = %d", cfg.MaxConcurrentDownloads)
	}
	if cfg.JobTTL != 10*time.Minute {
		t.Errorf("JobTTL = %v", cfg.JobTTL)
	}
	if cfg.ThrottleInterval != 500*time.Millisecond {
		t.Errorf("ThrottleInterval = %v", cfg.ThrottleInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DL_LISTEN_ADDR", ":9999")
	t.Setenv("DL_MAX_CONCURRENT_DOWNLOADS", "7")
	t.Setenv("DL_THROTTLE_INTERVAL", "250ms")
	t.Setenv("DL_PRESERVE_PROGRESS_ON_FAILURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.MaxConcurrentDownloads != 7 {
		t.Errorf("MaxConcurrentDownloads = %d", cfg.MaxConcurrentDownloads)
	}
	if cfg.ThrottleInterval != 250*time.Millisecond {
		t.Errorf("ThrottleInterval = %v", cfg.ThrottleInterval)
	}
	if !cfg.PreserveProgressOnFailure {
		t.Error("PreserveProgressOnFailure not applied")
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "listen_addr: \":7777\"\nrabbitmq_exchange: fromfile\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DL_CONFIG_PATH", path)
	t.Setenv("DL_LISTEN_ADDR", ":8888")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != ":8888" {
		t.Errorf("ListenAddr = %q, env should win over file", cfg.ListenAddr)
	}
	if cfg.RabbitMQExchange != "fromfile" {
		t.Errorf("RabbitMQExchange = %q, file should win over default", cfg.RabbitMQExchange)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"DL_QUEUE_BACKEND": "kafka"}},
		{"sqs without queue url", map[string]string{"DL_QUEUE_BACKEND": "sqs"}},
		{"non-positive concurrency", map[string]string{"DL_MAX_CONCURRENT_DOWNLOADS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}
