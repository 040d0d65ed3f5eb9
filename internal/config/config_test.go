package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v2"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SKYBRIDGE_TOKEN", "SKYBRIDGE_TENANT_ID", "SKYBRIDGE_AGENT_ID",
		"SKYBRIDGE_CLOUD_URL", "SKYBRIDGE_LOG_LEVEL", "SKYBRIDGE_DATA_DIR",
		"SKYBRIDGE_UI_PORT", "SKYBRIDGE_METRICS_PORT", "SKYBRIDGE_SERVER_FINGERPRINT",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKYBRIDGE_TOKEN", "tok")
	t.Setenv("SKYBRIDGE_TENANT_ID", "tenant-1")
	t.Setenv("SKYBRIDGE_AGENT_ID", "agent-1")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UIPort != DefaultUIPort || cfg.MetricsPort != DefaultMetricsPort {
		t.Fatalf("expected default ports, got %d/%d", cfg.UIPort, cfg.MetricsPort)
	}
	if cfg.Token != "tok" {
		t.Fatalf("env token not applied: %q", cfg.Token)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults should be written back: %v", err)
	}
}

func TestLoad_FileValuesAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `token: file-token
tenant_id: tenant-file
agent_id: agent-file
cloud_url: cloud.example.com:9999
log_level: warn
ui_port: 1234
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SKYBRIDGE_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "env-token" {
		t.Fatalf("env must override file, got %q", cfg.Token)
	}
	if cfg.TenantID != "tenant-file" || cfg.AgentID != "agent-file" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.UIPort != 1234 {
		t.Fatalf("file port lost: %d", cfg.UIPort)
	}
	if cfg.MetricsPort != DefaultMetricsPort {
		t.Fatalf("missing field should default, got %d", cfg.MetricsPort)
	}
}

func TestLoad_MissingCredentialFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := "token: tok\nagent_id: agent-1\n" // no tenant_id
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing tenant_id")
	}
	if !strings.Contains(err.Error(), "tenant_id") {
		t.Fatalf("diagnostic should name the missing field: %v", err)
	}
}

func TestLoad_EmptyAgentIDSurvivesRestart(t *testing.T) {
	// an agent provisioned without an id enrolls by token; the defaults file
	// written on first start carries agent_id "" and the second start must
	// still load it (the assigned id lives in the state file, not here)
	clearEnv(t)
	t.Setenv("SKYBRIDGE_TOKEN", "tok")
	t.Setenv("SKYBRIDGE_TENANT_ID", "tenant-1")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentID != "" {
		t.Fatalf("agent id should be empty before enrollment, got %q", cfg.AgentID)
	}

	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("restart after enrollment must load: %v", err)
	}
	if cfg.AgentID != "" {
		t.Fatalf("unexpected agent id: %q", cfg.AgentID)
	}
}

func TestSave_KeepsBackup(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKYBRIDGE_TOKEN", "tok")
	t.Setenv("SKYBRIDGE_TENANT_ID", "tenant")
	t.Setenv("SKYBRIDGE_AGENT_ID", "agent")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var reread AgentConfig
	if err := yaml.Unmarshal(data, &reread); err != nil {
		t.Fatal(err)
	}
	if reread.LogLevel != "debug" {
		t.Fatalf("saved log level lost: %q", reread.LogLevel)
	}
}
