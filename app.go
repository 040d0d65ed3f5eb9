package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"

	"github.com/skybridge-io/skybridge/internal/agent"
	"github.com/skybridge-io/skybridge/internal/config"
	"github.com/skybridge-io/skybridge/internal/env"
	"github.com/skybridge-io/skybridge/internal/journal"
	"github.com/skybridge-io/skybridge/internal/keys"
	"github.com/skybridge-io/skybridge/internal/metrics"
	"github.com/skybridge-io/skybridge/internal/pidfile"
	"github.com/skybridge-io/skybridge/internal/version"
	"github.com/skybridge-io/skybridge/internal/webui"
)

var (
	configPath = flag.String("config", "", "path to agent.yaml (default: <data-dir>/agent.yaml)")
	dataDir    = flag.String("data-dir", "", "persistent directory for state, keys and journal")
	logPath    = flag.String("logfile", "", "send log output to a file")
	debug      = flag.Bool("debug", false, "show debug output")
	ginDebug   = flag.Bool("gin-debug", false, "show gin debug output")
	pidPath    = flag.String("pidfile", "", "create PID file at the given path")

	justDisplayVersion = flag.Bool("version", false, "display agent version and quit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if *justDisplayVersion {
		cmd = "version"
	}

	switch cmd {
	case "", "start":
		run()
	case "health":
		os.Exit(healthCheck())
	case "version":
		fmt.Printf("skybridge version %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildDate)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `skybridge sync agent

usage: skybridge [flags] <command>

commands:
  start     run the agent until terminated (default)
  health    probe the local agent; exit 0 only when alive and ready
  version   print version information

flags:
`)
	flag.PrintDefaults()
}

func run() {
	// Resolve dirs before anything logs.
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

	if err := env.LoadDotEnvFiles("", resolvedDataDir); err != nil {
		log.Printf("failed to load .env: %v", err)
	}

	log.SetPrefix("[skybridge] ")
	log.SetFlags(log.Ldate | log.Ltime)

	if *logPath != "" {
		file, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			log.Fatalf("error opening log file %q: %v", *logPath, err)
		}
		log.SetOutput(file)
	}

	cfg, err := config.Load(resolvedConfig)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = resolvedDataDir
	}

	if *ginDebug || *debug || cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if *pidPath != "" {
		pidFile, err := pidfile.New(*pidPath)
		if err != nil {
			log.Fatalf("error creating pidfile: %v", err)
		}
		defer func() {
			if nerr := pidFile.Remove(); nerr != nil {
				log.Print(nerr)
			}
		}()
	}

	log.Println("version " + version.Version + " starting")

	// The identity key pair normally exists already (the installer creates
	// it); generate on first start so the agent also works stand-alone.
	keyPair, generated, err := keys.Ensure(filepath.Join(cfg.DataDir, "keys"))
	if err != nil {
		log.Fatalf("identity keys: %v", err)
	}
	if generated {
		log.Printf("generated identity key pair in %s", filepath.Dir(keyPair.PrivatePath))
	}
	if _, err := keyPair.Load(); err != nil {
		log.Fatalf("identity key unreadable: %v", err)
	}

	jnl, err := journal.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	jnl.ScheduleCleanup(7*24*time.Hour, ctx.Done())

	hostname, _ := os.Hostname()
	syncAgent := agent.New(agent.Config{
		Endpoint:          cfg.CloudURL,
		Token:             cfg.Token,
		TenantID:          cfg.TenantID,
		AgentID:           cfg.AgentID,
		Hostname:          hostname,
		Version:           version.Version,
		DataDir:           cfg.DataDir,
		Heartbeat:         time.Duration(cfg.HeartbeatSeconds) * time.Second,
		ServerFingerprint: cfg.ServerFingerprint,
	}, jnl)

	var ready atomic.Bool
	ui := webui.New(cfg, webui.Options{
		ConfigPath: resolvedConfig,
		Agent:      syncAgent,
		Journal:    jnl,
		Ready:      ready.Load,
		Version:    version.Version,
	})
	syncAgent.SetNotifier(func(snap agent.Snapshot) {
		ui.Hub().Broadcast("status", snap)
	})

	errCh := make(chan error, 2)
	go func() { errCh <- metrics.Serve(ctx, cfg.MetricsPort) }()
	go func() { errCh <- ui.Serve(ctx, cfg.UIPort) }()
	go syncAgent.Run(ctx)
	go func() {
		if err := config.Watch(ctx, resolvedConfig, func(m config.Mutable) {
			syncAgent.SetHeartbeat(time.Duration(m.HeartbeatSeconds) * time.Second)
			if m.LogLevel == "debug" {
				gin.SetMode(gin.DebugMode)
			} else if !*ginDebug && !*debug {
				gin.SetMode(gin.ReleaseMode)
			}
		}); err != nil {
			log.Printf("config watcher stopped: %v", err)
		}
	}()

	ready.Store(true)
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("systemd notify failed: %v", err)
	} else if sent {
		log.Printf("notified systemd of readiness")
	}

	select {
	case <-ctx.Done():
		log.Println("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("listener failed: %v", err)
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
