// Package packages installs the container runtime through the distribution's
// package manager.
package packages

import (
	"context"
	"fmt"
	"log"

	"github.com/skybridge-io/skybridge/internal/install/execx"
	"github.com/skybridge-io/skybridge/internal/install/osrelease"
)

// Manager describes one package manager invocation plan.
type Manager struct {
	Name    string
	Refresh []string   // optional index refresh, run first
	Install [][]string // install commands, run in order
}

// ManagerFor returns the package manager plan for a distribution family.
func ManagerFor(family osrelease.Family) (*Manager, error) {
	switch family {
	case osrelease.FamilyDebian:
		return &Manager{
			Name:    "apt-get",
			Refresh: []string{"apt-get", "update", "-qq"},
			Install: [][]string{
				{"apt-get", "install", "-y", "-qq", "docker.io"},
			},
		}, nil
	case osrelease.FamilyRHEL:
		return &Manager{
			Name: "dnf",
			Install: [][]string{
				{"dnf", "install", "-y", "docker"},
			},
		}, nil
	case osrelease.FamilySUSE:
		return &Manager{
			Name:    "zypper",
			Refresh: []string{"zypper", "--non-interactive", "refresh"},
			Install: [][]string{
				{"zypper", "--non-interactive", "install", "docker"},
			},
		}, nil
	case osrelease.FamilyArch:
		return &Manager{
			Name: "pacman",
			Install: [][]string{
				{"pacman", "-Sy", "--noconfirm", "docker"},
			},
		}, nil
	}
	return nil, fmt.Errorf("no supported package manager for distribution family %q", family)
}

// yum is kept as a fallback for RHEL-family hosts that predate dnf.
func rhelFallback() *Manager {
	return &Manager{
		Name: "yum",
		Install: [][]string{
			{"yum", "install", "-y", "docker"},
		},
	}
}

// InstallDocker installs the docker engine using the family's package
// manager and enables the service. It is a no-op burden on the caller to
// check whether docker is already present.
func InstallDocker(ctx context.Context, runner execx.Runner, family osrelease.Family) error {
	mgr, err := ManagerFor(family)
	if err != nil {
		return err
	}
	if _, lookErr := runner.LookPath(mgr.Name); lookErr != nil {
		if family == osrelease.FamilyRHEL {
			fallback := rhelFallback()
			if _, yumErr := runner.LookPath(fallback.Name); yumErr == nil {
				mgr = fallback
			} else {
				return fmt.Errorf("neither dnf nor yum found on a %s-family host", family)
			}
		} else {
			return fmt.Errorf("package manager %s not found: %w", mgr.Name, lookErr)
		}
	}

	log.Printf("installing docker via %s", mgr.Name)
	if len(mgr.Refresh) > 0 {
		if _, err := runner.Run(ctx, mgr.Refresh[0], mgr.Refresh[1:]...); err != nil {
			return fmt.Errorf("refresh package index: %w", err)
		}
	}
	for _, cmd := range mgr.Install {
		if _, err := runner.Run(ctx, cmd[0], cmd[1:]...); err != nil {
			return fmt.Errorf("install docker: %w", err)
		}
	}

	// Best effort: enable and start the engine. systemctl may be missing in
	// containers used for testing the installer itself.
	if _, err := runner.LookPath("systemctl"); err == nil {
		if _, err := runner.Run(ctx, "systemctl", "enable", "--now", "docker"); err != nil {
			log.Printf("warning: could not enable docker service: %v", err)
		}
	}
	return nil
}
