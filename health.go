package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/skybridge-io/skybridge/internal/config"
)

// healthCheck probes the local web port's /healthz. Exit code 0 means the
// agent process is alive and ready; anything else is unhealthy. This is the
// container HEALTHCHECK command.
func healthCheck() int {
	port := healthPort()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Println("healthy")
	return 0
}

// healthPort resolves the UI port the way the running agent would, without
// requiring credentials: env first, then agent.yaml, then the default.
func healthPort() int {
	if raw := os.Getenv("SKYBRIDGE_UI_PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			return p
		}
	}

	resolvedDataDir := *dataDir
	if resolvedDataDir == "" {
		resolvedDataDir = os.Getenv("SKYBRIDGE_DATA_DIR")
	}
	if resolvedDataDir == "" {
		resolvedDataDir = config.Default().DataDir
	}
	resolvedConfig := *configPath
	if resolvedConfig == "" {
		resolvedConfig = filepath.Join(resolvedDataDir, "agent.yaml")
	}

	if data, err := os.ReadFile(resolvedConfig); err == nil {
		var partial struct {
			UIPort int `yaml:"ui_port"`
		}
		if yaml.Unmarshal(data, &partial) == nil && partial.UIPort > 0 {
			return partial.UIPort
		}
	}
	return config.DefaultUIPort
}
