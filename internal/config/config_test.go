package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Optimize.DepartureBuffer != 15*time.Minute {
		t.Errorf("departure buffer = %v, want 15m", cfg.Optimize.DepartureBuffer)
	}
	if cfg.Routing.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Routing.MaxAttempts)
	}
	if cfg.Office.Lon != 36.8219 || cfg.Office.Lat != -1.30072 {
		t.Errorf("office = %+v, want lon=36.8219 lat=-1.30072", cfg.Office)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEPARTURE_BUFFER", "20m")
	t.Setenv("OFFICE_LAT", "52.52")
	t.Setenv("OFFICE_LON", "13.405")
	t.Setenv("ROUTING_TIMEOUT", "3s")
	t.Setenv("OPTIMIZE_CONCURRENCY", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Port)
	}
	if cfg.Optimize.DepartureBuffer != 20*time.Minute {
		t.Errorf("departure buffer = %v, want 20m", cfg.Optimize.DepartureBuffer)
	}
	if cfg.Routing.Timeout != 3*time.Second {
		t.Errorf("routing timeout = %v, want 3s", cfg.Routing.Timeout)
	}
	if cfg.Optimize.Concurrency != 2 {
		t.Errorf("concurrency = %d, want 2", cfg.Optimize.Concurrency)
	}

	loc := cfg.Office.Location()
	if loc.Lat != 52.52 || loc.Lon != 13.405 {
		t.Errorf("office location = %+v", loc)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("ROUTING_MAX_ATTEMPTS", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for ROUTING_MAX_ATTEMPTS=0")
	}
}
