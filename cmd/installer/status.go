package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/skybridge-io/skybridge/internal/install/dockercli"
	"github.com/skybridge-io/skybridge/internal/install/execx"
	"github.com/skybridge-io/skybridge/internal/keys"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the state of the agent container and local material",
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	ctx := c.Context
	docker := dockercli.New(execx.System{})
	dataDir := c.String("data-dir")

	if !docker.Available(ctx) {
		return cli.Exit("docker is not available", 1)
	}

	st, err := docker.Inspect(ctx)
	if err != nil {
		return err
	}
	switch {
	case st.Image == "":
		fmt.Printf("container:  not installed\n")
	case st.Running:
		health := st.Health
		if health == "" {
			health = "unknown"
		}
		fmt.Printf("container:  running (health: %s) image %s since %s\n", health, st.Image, st.Started)
	default:
		fmt.Printf("container:  stopped (image %s)\n", st.Image)
	}

	configFile := filepath.Join(dataDir, "agent.yaml")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("config:     %s\n", configFile)
	} else {
		fmt.Printf("config:     missing (%s)\n", configFile)
	}

	pair := keys.PairIn(filepath.Join(dataDir, "keys"))
	if _, err := os.Stat(pair.PrivatePath); err == nil {
		fmt.Printf("identity:   %s\n", pair.PrivatePath)
	} else {
		fmt.Printf("identity:   not generated\n")
	}
	return nil
}

func uninstallCommand() *cli.Command {
	return &cli.Command{
		Name:  "uninstall",
		Usage: "stop and remove the agent container",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "purge",
				Usage: "also delete the data directory (config, keys, journal)",
			},
		},
		Action: runUninstall,
	}
}

func runUninstall(c *cli.Context) error {
	ctx := c.Context
	docker := dockercli.New(execx.System{})
	dataDir := c.String("data-dir")

	if !docker.Available(ctx) {
		return cli.Exit("docker is not available", 1)
	}
	if err := docker.Remove(ctx); err != nil {
		return err
	}
	log.Printf("container removed")

	if c.Bool("purge") {
		if dataDir == "" || dataDir == "/" {
			return fmt.Errorf("refusing to purge data dir %q", dataDir)
		}
		if err := os.RemoveAll(dataDir); err != nil {
			return fmt.Errorf("purge data dir: %w", err)
		}
		log.Printf("data directory %s removed", dataDir)
	} else {
		log.Printf("data directory %s kept (use --purge to delete it)", dataDir)
	}
	return nil
}
