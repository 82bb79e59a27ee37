package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: slotbook-test
database:
  path: "${SLOTBOOK_TEST_DB}"
scheduling:
  lead_time: 12h
  hold_duration: 10m
sweeper:
  enabled: true
  schedule: "*/5 * * * *"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("SLOTBOOK_TEST_DB", "data/test.db")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "data/test.db" {
		t.Errorf("expected env-expanded database path, got %s", cfg.Database.Path)
	}
	if cfg.Scheduling.LeadTime != 12*time.Hour {
		t.Errorf("expected lead time 12h, got %s", cfg.Scheduling.LeadTime)
	}
	if cfg.Scheduling.HoldDuration != 10*time.Minute {
		t.Errorf("expected hold duration 10m, got %s", cfg.Scheduling.HoldDuration)
	}
	if cfg.Scheduling.SlotDuration != 15*time.Minute {
		t.Errorf("expected default slot duration 15m, got %s", cfg.Scheduling.SlotDuration)
	}
	if cfg.Sweeper.LeaseKey != "slotbook-test:sweeper" {
		t.Errorf("expected lease key derived from app name, got %s", cfg.Sweeper.LeaseKey)
	}
}

func TestLoadConfig_LeadTime(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected time.Duration
	}{
		{name: "absent", yaml: "database:\n  path: test.db\n", expected: 24 * time.Hour},
		{name: "zero", yaml: "database:\n  path: test.db\nscheduling:\n  lead_time: 0s\n", expected: 0},
		{name: "set", yaml: "database:\n  path: test.db\nscheduling:\n  lead_time: 2h\n", expected: 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("failed to write temp config: %v", err)
			}

			cfg, err := Load(configPath)
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}
			if cfg.Scheduling.LeadTime != tt.expected {
				t.Errorf("expected lead time %s, got %s", tt.expected, cfg.Scheduling.LeadTime)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "negative lead time",
			mutate:  func(c *Config) { c.Scheduling.LeadTime = -time.Hour },
			wantErr: true,
		},
		{
			name:    "zero hold duration",
			mutate:  func(c *Config) { c.Scheduling.HoldDuration = 0 },
			wantErr: true,
		},
		{
			name: "bad sweeper schedule",
			mutate: func(c *Config) {
				c.Sweeper.Enabled = true
				c.Sweeper.Schedule = "every so often"
			},
			wantErr: true,
		},
		{
			name: "lease without redis",
			mutate: func(c *Config) {
				c.Sweeper.Enabled = true
				c.Sweeper.RequireLease = true
			},
			wantErr: true,
		},
		{
			name: "backup without storage path",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Scheduling.SlotDuration != 15*time.Minute {
		t.Errorf("expected default slot duration 15m, got %s", cfg.Scheduling.SlotDuration)
	}
	if cfg.Scheduling.LeadTime != 0 {
		t.Errorf("expected lead time left as set, got %s", cfg.Scheduling.LeadTime)
	}
	if cfg.Scheduling.HoldDuration != 30*time.Minute {
		t.Errorf("expected default hold duration 30m, got %s", cfg.Scheduling.HoldDuration)
	}
	if cfg.Scheduling.SweepGrace != 0 {
		t.Errorf("expected no default sweep grace, got %s", cfg.Scheduling.SweepGrace)
	}
	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Sweeper.Schedule != "@every 1m" {
		t.Errorf("expected default sweeper schedule, got %s", cfg.Sweeper.Schedule)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}
