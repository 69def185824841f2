package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  host: "127.0.0.1"
  port: 9090
actuation:
  allowed_risk_levels: ["low"]
vdi:
  retry_attempts: 5
  retry_backoff_base_seconds: 0.5
database:
  path: "/tmp/actuation-test.db"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Host != "127.0.0.1" {
		t.Errorf("Service.Host = %q, want %q", cfg.Service.Host, "127.0.0.1")
	}
	if cfg.Service.Port != 9090 {
		t.Errorf("Service.Port = %d, want 9090", cfg.Service.Port)
	}
	if len(cfg.Actuation.AllowedRiskLevels) != 1 || cfg.Actuation.AllowedRiskLevels[0] != "low" {
		t.Errorf("AllowedRiskLevels = %v, want [low]", cfg.Actuation.AllowedRiskLevels)
	}
	if cfg.VDI.RetryAttempts != 5 {
		t.Errorf("VDI.RetryAttempts = %d, want 5", cfg.VDI.RetryAttempts)
	}
	if cfg.VDI.BackoffBase() != 500*time.Millisecond {
		t.Errorf("VDI.BackoffBase() = %v, want 500ms", cfg.VDI.BackoffBase())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Service.Port != 8086 {
		t.Errorf("default Service.Port = %d, want 8086", cfg.Service.Port)
	}
	if got := cfg.Actuation.AllowedRiskLevels; len(got) != 2 || got[0] != "low" || got[1] != "medium" {
		t.Errorf("default AllowedRiskLevels = %v, want [low medium]", got)
	}
	if cfg.VDI.RequestTimeout() != 40*time.Second {
		t.Errorf("default VDI.RequestTimeout() = %v, want 40s", cfg.VDI.RequestTimeout())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ACTUATION_ALLOWED_RISK_LEVELS", "low, medium ,high")
	t.Setenv("ACTUATION_LOGGING_ONLY", "true")
	t.Setenv("VDI_RETRY_ATTEMPTS", "7")
	t.Setenv("VDI_PROGRESS_INTERVAL_SECONDS", "1.5")
	t.Setenv("POLICY_URL", "http://policy:8081")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if len(cfg.Actuation.AllowedRiskLevels) != 3 {
		t.Errorf("AllowedRiskLevels = %v, want 3 entries", cfg.Actuation.AllowedRiskLevels)
	}
	if !cfg.Actuation.LoggingOnly {
		t.Error("LoggingOnly = false, want true")
	}
	if cfg.VDI.RetryAttempts != 7 {
		t.Errorf("VDI.RetryAttempts = %d, want 7", cfg.VDI.RetryAttempts)
	}
	if cfg.VDI.ProgressInterval() != 1500*time.Millisecond {
		t.Errorf("VDI.ProgressInterval() = %v, want 1.5s", cfg.VDI.ProgressInterval())
	}
	if cfg.Downstream.PolicyURL != "http://policy:8081" {
		t.Errorf("PolicyURL = %q, want http://policy:8081", cfg.Downstream.PolicyURL)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Service.Port = 0 },
			wantErr: "service.port",
		},
		{
			name:    "unknown risk level",
			mutate:  func(c *Config) { c.Actuation.AllowedRiskLevels = []string{"extreme"} },
			wantErr: "allowed_risk_levels",
		},
		{
			name: "auth without token",
			mutate: func(c *Config) {
				c.Actuation.RequireAuth = true
				c.Actuation.ServiceToken = ""
				c.Actuation.TokenSecret = ""
			},
			wantErr: "require_auth",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.VDI.RetryAttempts = 0 },
			wantErr: "retry_attempts",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.VDI.RetryBackoffBaseSeconds = -1 },
			wantErr: "backoff",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
