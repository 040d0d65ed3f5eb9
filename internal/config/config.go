package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// AgentConfig is the top-level agent.yaml structure. The scalar keys at the
// top mirror what the cloud side provisions per agent; everything else has
// local defaults.
type AgentConfig struct {
	Token    string `yaml:"token" json:"token"`
	TenantID string `yaml:"tenant_id" json:"tenant_id"`
	AgentID  string `yaml:"agent_id" json:"agent_id"`
	CloudURL string `yaml:"cloud_url" json:"cloud_url"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	UIPort      int    `yaml:"ui_port" json:"ui_port"`
	MetricsPort int    `yaml:"metrics_port" json:"metrics_port"`
	DataDir     string `yaml:"data_dir" json:"data_dir"`

	// HeartbeatSeconds is the interval between heartbeat frames.
	HeartbeatSeconds int `yaml:"heartbeat_seconds" json:"heartbeat_seconds"`

	// ServerFingerprint pins the cloud endpoint certificate (sha256 hex).
	// Empty means trust-on-first-use.
	ServerFingerprint string `yaml:"server_fingerprint,omitempty" json:"server_fingerprint,omitempty"`

	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	UI      UIConfig      `yaml:"ui" json:"ui"`
}

// RuntimeConfig holds the numeric identity the agent's on-disk material is
// owned by inside the container.
type RuntimeConfig struct {
	UID int `yaml:"uid" json:"uid"`
	GID int `yaml:"gid" json:"gid"`
}

// UIConfig configures the browser-facing interface.
type UIConfig struct {
	Username         string `yaml:"username" json:"username"`
	Password         string `yaml:"password" json:"-"`
	JWTSecret        string `yaml:"jwt_secret" json:"-"`
	JWTExpiryMinutes int    `yaml:"jwt_expiry_minutes" json:"jwt_expiry_minutes"`
}

// Defaults the agent falls back to when agent.yaml is absent or partial.
const (
	DefaultUIPort      = 8090
	DefaultMetricsPort = 9188
	DefaultCloudURL    = "cloud.skybridge.io:8443"
	DefaultLogLevel    = "info"
	DefaultHeartbeat   = 30
	DefaultRuntimeUID  = 6842
	DefaultRuntimeGID  = 6842
)

// Default returns a fresh config populated with defaults only.
func Default() *AgentConfig {
	return &AgentConfig{
		CloudURL:         DefaultCloudURL,
		LogLevel:         DefaultLogLevel,
		UIPort:           DefaultUIPort,
		MetricsPort:      DefaultMetricsPort,
		DataDir:          defaultDataDir(),
		HeartbeatSeconds: DefaultHeartbeat,
		Runtime:          RuntimeConfig{UID: DefaultRuntimeUID, GID: DefaultRuntimeGID},
		UI: UIConfig{
			Username:         "admin",
			JWTExpiryMinutes: 1440, // 1440 minutes = 24 hours
		},
	}
}

func defaultDataDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".skybridge")
	}
	return "./skybridge_data"
}

// Load reads agent.yaml from path, fills defaults, overlays SKYBRIDGE_*
// environment variables and installs the result as the current config.
// A missing file is not an error: defaults are written back so subsequent
// runs see a concrete file.
func Load(path string) (*AgentConfig, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(cfg)
		if saveErr := save(path, cfg); saveErr != nil {
			log.Printf("warning: failed to save default agent config: %v", saveErr)
		} else {
			log.Printf("created default config file %s", path)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %v", err)
	}

	fillDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg back to path, keeping a .bak of the previous file.
func Save(path string, cfg *AgentConfig) error {
	if cfg == nil {
		return fmt.Errorf("agent config is nil")
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			log.Printf("warning: failed to backup config file: %v", err)
		}
	}

	if err := save(path, cfg); err != nil {
		// restore backup if save failed
		if _, backupErr := os.Stat(path + ".bak"); backupErr == nil {
			if restoreErr := os.Rename(path+".bak", path); restoreErr != nil {
				log.Printf("error: failed to restore backup config file: %v", restoreErr)
			}
		}
		return err
	}
	return nil
}

func save(path string, cfg *AgentConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize config: %v", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %v", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save config file: %v", err)
	}
	return nil
}

// Validate enforces the credentials the stream cannot work without. An
// empty agent_id is fine: the agent enrolls by token and keeps the assigned
// id in its state file, not in agent.yaml.
func Validate(cfg *AgentConfig) error {
	switch {
	case strings.TrimSpace(cfg.Token) == "":
		return fmt.Errorf("config: token must not be empty (set SKYBRIDGE_TOKEN or token in agent.yaml)")
	case strings.TrimSpace(cfg.TenantID) == "":
		return fmt.Errorf("config: tenant_id must not be empty (set SKYBRIDGE_TENANT_ID or tenant_id in agent.yaml)")
	}
	return nil
}

func fillDefaults(cfg *AgentConfig) {
	def := Default()
	if cfg.CloudURL == "" {
		cfg.CloudURL = def.CloudURL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.UIPort <= 0 {
		cfg.UIPort = def.UIPort
	}
	if cfg.MetricsPort <= 0 {
		cfg.MetricsPort = def.MetricsPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.HeartbeatSeconds <= 0 {
		cfg.HeartbeatSeconds = def.HeartbeatSeconds
	}
	if cfg.Runtime.UID <= 0 {
		cfg.Runtime.UID = def.Runtime.UID
	}
	if cfg.Runtime.GID <= 0 {
		cfg.Runtime.GID = def.Runtime.GID
	}
	if cfg.UI.Username == "" {
		cfg.UI.Username = def.UI.Username
	}
	if cfg.UI.JWTExpiryMinutes <= 0 {
		cfg.UI.JWTExpiryMinutes = def.UI.JWTExpiryMinutes
	}
}

func applyEnvOverrides(cfg *AgentConfig) {
	if v := os.Getenv("SKYBRIDGE_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("SKYBRIDGE_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("SKYBRIDGE_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv("SKYBRIDGE_CLOUD_URL"); v != "" {
		cfg.CloudURL = v
	}
	if v := os.Getenv("SKYBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SKYBRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SKYBRIDGE_SERVER_FINGERPRINT"); v != "" {
		cfg.ServerFingerprint = v
	}
	if v := os.Getenv("SKYBRIDGE_UI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.UIPort = p
		}
	}
	if v := os.Getenv("SKYBRIDGE_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.MetricsPort = p
		}
	}
}

