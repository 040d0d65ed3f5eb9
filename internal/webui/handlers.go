package webui

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/ghodss/yaml"
	"github.com/gin-gonic/gin"

	"github.com/skybridge-io/skybridge/internal/config"
)

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

// handleHealthz answers the container health check and the installer's
// readiness probe. 200 means the process is alive and its subsystems are
// up; a live cloud session is not required (an agent in reconnect backoff
// is still healthy).
func (s *Server) handleHealthz(c *gin.Context) {
	if s.opts.Ready != nil && !s.opts.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	snap := s.opts.Agent.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"connected": snap.Connected,
		"version":   s.opts.Version,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.auth.enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured on this agent"})
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !s.auth.verify(req.Username, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	token, err := s.auth.generateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Agent.Snapshot())
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	events, err := s.opts.Journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// secret-bearing top-level keys never shown to the browser
var redactedKeys = []string{"token", "server_fingerprint"}

// handleGetConfig returns agent.yaml as JSON with secrets redacted. The
// YAML on disk is converted through JSON semantics so the browser sees the
// same shapes the PUT endpoint accepts.
func (s *Server) handleGetConfig(c *gin.Context) {
	data, err := os.ReadFile(s.opts.ConfigPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read config"})
		return
	}
	jsonBytes, err := yaml.YAMLToJSON(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse config"})
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse config"})
		return
	}
	for _, key := range redactedKeys {
		if _, ok := doc[key]; ok {
			doc[key] = "REDACTED"
		}
	}
	if ui, ok := doc["ui"].(map[string]any); ok {
		delete(ui, "password")
		delete(ui, "jwt_secret")
	}
	c.JSON(http.StatusOK, doc)
}

// handlePutConfig updates the mutable config subset and persists it. The
// config watcher picks the file change up and applies it to the running
// agent.
func (s *Server) handlePutConfig(c *gin.Context) {
	if !s.auth.enabled() {
		c.JSON(http.StatusForbidden, gin.H{"error": "config changes require login to be configured"})
		return
	}

	var req struct {
		LogLevel         *string `json:"log_level"`
		HeartbeatSeconds *int    `json:"heartbeat_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}
	if req.LogLevel != nil {
		cfg.LogLevel = *req.LogLevel
	}
	if req.HeartbeatSeconds != nil {
		if *req.HeartbeatSeconds < 5 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "heartbeat_seconds must be at least 5"})
			return
		}
		cfg.HeartbeatSeconds = *req.HeartbeatSeconds
	}
	if err := config.Save(s.opts.ConfigPath, cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "config updated"})
}
