// skybridge-installer provisions a Linux host to run the skybridge agent:
// it detects the distribution, installs Docker when absent, materializes the
// agent configuration from the operator's environment, generates the agent's
// identity key pair, launches the agent container and waits for its ports.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/skybridge-io/skybridge/internal/config"
	"github.com/skybridge-io/skybridge/internal/version"
)

func main() {
	log.SetPrefix("[skybridge-installer] ")
	log.SetFlags(0)

	app := &cli.App{
		Name:    "skybridge-installer",
		Usage:   "install and operate the skybridge sync agent container",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "persistent directory for config, keys and agent state",
				Value: config.Default().DataDir,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "load credentials from this .env file first",
			},
		},
		Commands: []*cli.Command{
			installCommand(),
			statusCommand(),
			uninstallCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
