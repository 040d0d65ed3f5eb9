// Package webui serves the browser-facing interface: a status page, a small
// JSON API, and a websocket channel with live agent state.
package webui

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/skybridge-io/skybridge/internal/agent"
	"github.com/skybridge-io/skybridge/internal/config"
	"github.com/skybridge-io/skybridge/internal/journal"
)

//go:embed index.html
var indexPage []byte

// Options wires the server to the rest of the agent.
type Options struct {
	ConfigPath string
	Agent      *agent.Agent
	Journal    *journal.Journal
	Ready      func() bool
	Version    string
}

// Server is the UI http server.
type Server struct {
	opts Options
	auth *authenticator
	hub  *Hub
}

// New builds the server from the current config.
func New(cfg *config.AgentConfig, opts Options) *Server {
	return &Server{
		opts: opts,
		auth: newAuthenticator(cfg.UI.Username, cfg.UI.Password, cfg.UI.JWTSecret, cfg.UI.JWTExpiryMinutes),
		hub:  NewHub(),
	}
}

// Hub exposes the websocket hub so the agent can push status updates.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router assembles the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[GIN] %3d | %13v | %s | %s %s\n",
			param.StatusCode,
			param.Latency,
			param.ClientIP,
			param.Method,
			param.Path,
		)
	}))
	r.Use(gin.Recovery())
	r.HandleMethodNotAllowed = true

	r.GET("/", gzip.Gzip(gzip.DefaultCompression), s.handleIndex)
	r.GET("/healthz", s.handleHealthz)
	r.POST("/api/login", s.handleLogin)

	api := r.Group("/api", s.auth.middleware())
	{
		api.GET("/status", s.handleStatus)
		api.GET("/events", s.handleEvents)
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handlePutConfig)
	}
	r.GET("/ws", s.auth.middleware(), s.hub.handleWebSocket)

	return r
}

// Serve runs the UI listener on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("serving web ui on http://0.0.0.0:%d", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
