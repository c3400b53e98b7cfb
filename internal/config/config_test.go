package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d", cfg.HTTP.Port)
	}
	if cfg.Database.ReaderDSN != cfg.Database.WriterDSN {
		t.Errorf("reader DSN should default to writer DSN")
	}
	if cfg.Dashboard.RecentActivityLimit != 10 {
		t.Errorf("Dashboard.RecentActivityLimit = %d", cfg.Dashboard.RecentActivityLimit)
	}
	if cfg.Messaging.Kafka.Topic != "loom.production.events" {
		t.Errorf("Kafka.Topic = %q", cfg.Messaging.Kafka.Topic)
	}
	if cfg.Auth.Enabled {
		t.Error("auth should be disabled by default")
	}
}

func TestNewDisabledBackendsFallBackToNoop(t *testing.T) {
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("MESSAGING_ENABLED", "false")
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Cache.Driver != "noop" || cfg.Messaging.Driver != "noop" {
		t.Fatalf("drivers = %q/%q, want noop", cfg.Cache.Driver, cfg.Messaging.Driver)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"auth without secret": {"AUTH_ENABLED": "true"},
		"unknown storage":     {"STORAGE_DRIVER": "ftp"},
		"unknown database":    {"DB_DRIVER": "oracle"},
		"bad http port":       {"HTTP_PORT": "0"},
		"unknown cache":       {"CACHE_DRIVER": "memcached"},
		"malformed port":      {"HTTP_PORT": "80a"},
		"malformed flag":      {"GRPC_ENABLED": "sometimes"},
		"malformed duration":  {"DASHBOARD_CACHE_TTL": "soon"},
		"sample ratio range":  {"OBS_TRACE_SAMPLE_RATIO": "1.5"},
		"unknown exporter":    {"OBS_TRACE_EXPORTER": "zipkin"},
	} {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := New(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewNormalisesValues(t *testing.T) {
	t.Setenv("OBS_PROMETHEUS_PATH", "metrics")
	t.Setenv("OBS_LOG_LEVEL", "  DEBUG ")
	t.Setenv("DASHBOARD_CACHE_TTL", "2m")
	t.Setenv("HTTP_CORS_ORIGINS", "http://a.test, ,http://b.test")
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Observability.PrometheusPath != "/metrics" {
		t.Errorf("PrometheusPath = %q", cfg.Observability.PrometheusPath)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
	if cfg.Dashboard.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %s", cfg.Dashboard.CacheTTL)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.HTTP.CORSOrigins)
	}
}

func TestNewReadsLoomSpecificForms(t *testing.T) {
	t.Setenv("DASHBOARD_CACHE_TTL", "45")
	t.Setenv("DB_DRIVER", "  SQLite ")
	t.Setenv("DB_WRITER_DSN", "file:loom.db")
	t.Setenv("STORAGE_DRIVER", "Local")
	t.Setenv("REDIS_ADDR", "   ")
	t.Setenv("OBS_TRACE_SAMPLE_RATIO", "0.25")
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Dashboard.CacheTTL != 45*time.Second {
		t.Errorf("CacheTTL = %s, want bare seconds", cfg.Dashboard.CacheTTL)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Storage.Driver != "local" {
		t.Errorf("drivers = %q/%q", cfg.Database.Driver, cfg.Storage.Driver)
	}
	if cfg.Cache.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("blank REDIS_ADDR should keep the default, got %q", cfg.Cache.Redis.Addr)
	}
	if cfg.Observability.TraceSampleRatio != 0.25 {
		t.Errorf("TraceSampleRatio = %v", cfg.Observability.TraceSampleRatio)
	}
	if cfg.Messaging.PublishTimeout != 2*time.Second || cfg.Messaging.Kafka.BatchTimeout != 10*time.Millisecond {
		t.Errorf("publish timeouts = %s/%s", cfg.Messaging.PublishTimeout, cfg.Messaging.Kafka.BatchTimeout)
	}
}

func TestNewReportsEveryMalformedValue(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("REDIS_DB", "one")
	_, err := New()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"HTTP_PORT", "REDIS_DB"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}
