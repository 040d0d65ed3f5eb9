package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/skybridge-io/skybridge/internal/config"
	"github.com/skybridge-io/skybridge/internal/env"
	"github.com/skybridge-io/skybridge/internal/install/dockercli"
	"github.com/skybridge-io/skybridge/internal/install/execx"
	"github.com/skybridge-io/skybridge/internal/install/group"
	"github.com/skybridge-io/skybridge/internal/install/osrelease"
	"github.com/skybridge-io/skybridge/internal/install/packages"
	"github.com/skybridge-io/skybridge/internal/install/probe"
	"github.com/skybridge-io/skybridge/internal/keys"
)

const defaultImage = "skybridge/agent:latest"

func installCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "provision the host and (re)create the agent container",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "image",
				Usage: "agent container image",
				Value: defaultImage,
			},
			&cli.BoolFlag{
				Name:  "build",
				Usage: "build the image from a local context instead of pulling",
			},
			&cli.StringFlag{
				Name:  "build-context",
				Usage: "build context directory used with --build",
				Value: ".",
			},
			&cli.IntFlag{
				Name:  "ui-port",
				Usage: "host port for the web interface",
				Value: config.DefaultUIPort,
			},
			&cli.IntFlag{
				Name:  "metrics-port",
				Usage: "host port for the metrics endpoint",
				Value: config.DefaultMetricsPort,
			},
			&cli.BoolFlag{
				Name:  "skip-docker-install",
				Usage: "fail instead of installing docker when it is missing",
			},
			&cli.StringFlag{
				Name:   "os-release",
				Usage:  "path to os-release (for testing)",
				Value:  osrelease.DefaultPath,
				Hidden: true,
			},
		},
		Action: runInstall,
	}
}

func runInstall(c *cli.Context) error {
	ctx := c.Context
	runner := execx.System{}
	docker := dockercli.New(runner)
	dataDir := c.String("data-dir")

	// Step 1: container runtime.
	if err := ensureDocker(ctx, runner, docker, c.String("os-release"), c.Bool("skip-docker-install")); err != nil {
		return err
	}

	// Step 2: docker group membership for the operator.
	if username, err := group.CurrentUser(); err != nil {
		log.Printf("warning: %v", err)
	} else if changed, err := group.EnsureMembership(ctx, runner, username); err != nil {
		log.Printf("warning: %v", err)
	} else if changed {
		log.Printf("added %s to the docker group; log out and back in for it to take effect", username)
	}

	// Step 3: credentials.
	if err := env.LoadDotEnvFiles(c.String("env-file"), dataDir); err != nil {
		log.Printf("warning: failed to load .env: %v", err)
	}
	if missing := env.CheckRequired(); len(missing) > 0 {
		return cli.Exit(fmt.Sprintf("missing required credentials: %s\nset them in the environment or in %s",
			strings.Join(missing, ", "), filepath.Join(dataDir, ".env")), 1)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Step 4: configuration file.
	configFile := filepath.Join(dataDir, "agent.yaml")
	subs := config.Substitutions{
		"TOKEN":     os.Getenv("SKYBRIDGE_TOKEN"),
		"TENANT_ID": os.Getenv("SKYBRIDGE_TENANT_ID"),
		"AGENT_ID":  os.Getenv("SKYBRIDGE_AGENT_ID"),
		"CLOUD_URL": envDefault("SKYBRIDGE_CLOUD_URL", config.DefaultCloudURL),
		"LOG_LEVEL": envDefault("SKYBRIDGE_LOG_LEVEL", config.DefaultLogLevel),
	}
	if err := config.Materialize(configFile, subs); err != nil {
		return err
	}
	log.Printf("configuration written to %s", configFile)

	// Step 5: identity key pair. Never regenerated once present.
	pair, generated, err := keys.Ensure(filepath.Join(dataDir, "keys"))
	if err != nil {
		return err
	}
	if generated {
		log.Printf("generated identity key pair in %s", filepath.Join(dataDir, "keys"))
		if err := pair.Chown(config.DefaultRuntimeUID, config.DefaultRuntimeGID); err != nil {
			log.Printf("warning: %v (rerun as root to fix ownership)", err)
		}
	} else {
		log.Printf("identity key pair already present, leaving it untouched")
	}

	// Step 6: container image.
	image := c.String("image")
	if c.Bool("build") {
		log.Printf("building %s from %s", image, c.String("build-context"))
		if err := docker.Build(ctx, image, c.String("build-context")); err != nil {
			return err
		}
	} else {
		log.Printf("pulling %s", image)
		if err := docker.Pull(ctx, image); err != nil {
			return err
		}
	}

	// Step 7: recreate the container. Always stop-and-recreate, never an
	// in-place upgrade.
	if err := docker.Remove(ctx); err != nil {
		return err
	}
	spec := dockercli.RunSpec{
		Image:       image,
		DataDir:     dataDir,
		UIPort:      c.Int("ui-port"),
		MetricsPort: c.Int("metrics-port"),
		Env: map[string]string{
			"SKYBRIDGE_TOKEN":     os.Getenv("SKYBRIDGE_TOKEN"),
			"SKYBRIDGE_TENANT_ID": os.Getenv("SKYBRIDGE_TENANT_ID"),
			"SKYBRIDGE_AGENT_ID":  os.Getenv("SKYBRIDGE_AGENT_ID"),
		},
	}
	if err := docker.Run(ctx, spec); err != nil {
		return err
	}
	log.Printf("container %s started", dockercli.ContainerName)

	// Step 8: wait for the two ports. Exhausting the attempts degrades to a
	// warning; the container keeps retrying on its own.
	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", c.Int("metrics-port"))
	if err := probe.Metrics(ctx, metricsURL, probe.Options{}); err != nil {
		log.Printf("warning: metrics endpoint not ready yet: %v", err)
	} else {
		log.Printf("metrics endpoint is up at %s", metricsURL)
	}
	uiURL := fmt.Sprintf("http://127.0.0.1:%d/", c.Int("ui-port"))
	if err := probe.WebUI(ctx, uiURL, probe.Options{}); err != nil {
		log.Printf("warning: web ui not ready yet: %v", err)
	} else {
		log.Printf("web ui is up at %s", uiURL)
	}

	log.Printf("install complete")
	return nil
}

// ensureDocker verifies a working engine, installing one through the
// distribution's package manager when allowed.
func ensureDocker(ctx context.Context, runner execx.Runner, docker *dockercli.Client, osReleasePath string, skipInstall bool) error {
	if docker.Available(ctx) {
		log.Printf("docker engine found")
		return nil
	}
	if skipInstall {
		return cli.Exit("docker is not available and --skip-docker-install was given", 1)
	}

	info, err := osrelease.Detect(osReleasePath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("docker is not available and the distribution could not be detected: %v", err), 1)
	}
	log.Printf("detected %s (family %s)", info, info.Family())

	if err := packages.InstallDocker(ctx, runner, info.Family()); err != nil {
		return cli.Exit(fmt.Sprintf("docker installation failed: %v", err), 1)
	}
	if !docker.Available(ctx) {
		return cli.Exit("docker was installed but the engine is not responding; start it with: systemctl start docker", 1)
	}
	log.Printf("docker engine installed")
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
