package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/jobtrail-test/jobtrail.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %q, want :8080", cfg.API.ListenAddr)
	}
	if cfg.API.ReadTimeout != 30*time.Second {
		t.Errorf("API.ReadTimeout = %v, want 30s", cfg.API.ReadTimeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %q/%q, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Workflow.RemovePolicy != "block" {
		t.Errorf("Workflow.RemovePolicy = %q, want block", cfg.Workflow.RemovePolicy)
	}
	if len(cfg.Analytics.InterviewStages) != 1 || cfg.Analytics.InterviewStages[0] != "Interview" {
		t.Errorf("Analytics.InterviewStages = %v, want [Interview]", cfg.Analytics.InterviewStages)
	}
	if cfg.Metrics.ListenAddr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics defaults = %q/%q", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/jobtrail-test/jobtrail.db
api:
  listen_addr: ":9000"
  api_key: secret
logging:
  level: debug
  format: text
workflow:
  remove_policy: reassign
  fallback_stage: Applied
  stages:
    - name: Applied
      color: "#0088FE"
    - name: Interview
    - name: Offer
analytics:
  interview_stages: [Interview]
  offer_stages: [Offer]
metrics:
  enabled: true
  allowed_ips: ["127.0.0.1", "10.0.0.0/8"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.APIKey != "secret" {
		t.Errorf("API.APIKey = %q, want secret", cfg.API.APIKey)
	}
	if len(cfg.Workflow.Stages) != 3 {
		t.Errorf("len(Workflow.Stages) = %d, want 3", len(cfg.Workflow.Stages))
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "bad remove policy",
			content: "workflow:\n  remove_policy: cascade\n",
			wantErr: "remove_policy",
		},
		{
			name:    "reassign without fallback",
			content: "workflow:\n  remove_policy: reassign\n",
			wantErr: "fallback_stage",
		},
		{
			name:    "duplicate seed stage",
			content: "workflow:\n  stages:\n    - name: Applied\n    - name: Applied\n",
			wantErr: "duplicate stage",
		},
		{
			name:    "fallback not in seed stages",
			content: "workflow:\n  remove_policy: reassign\n  fallback_stage: Limbo\n  stages:\n    - name: Applied\n",
			wantErr: "fallback_stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
