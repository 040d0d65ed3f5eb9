// Package group ensures the invoking user can talk to the docker socket.
package group

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/skybridge-io/skybridge/internal/install/execx"
)

const dockerGroup = "docker"

// CurrentUser resolves the operator running the installer, preferring
// SUDO_USER so the fix lands on the real login account.
func CurrentUser() (string, error) {
	if sudoUser := strings.TrimSpace(os.Getenv("SUDO_USER")); sudoUser != "" && sudoUser != "root" {
		return sudoUser, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	return u.Username, nil
}

// InGroup reports whether username is already a member of the docker group.
func InGroup(username string) (bool, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return false, fmt.Errorf("lookup user %s: %w", username, err)
	}
	g, err := user.LookupGroup(dockerGroup)
	if err != nil {
		// No docker group at all: treat as not a member; the engine install
		// creates it.
		return false, nil
	}
	ids, err := u.GroupIds()
	if err != nil {
		return false, fmt.Errorf("list groups for %s: %w", username, err)
	}
	for _, id := range ids {
		if id == g.Gid {
			return true, nil
		}
	}
	return false, nil
}

// EnsureMembership adds username to the docker group when missing. Returns
// true when a change was made, meaning the user must log in again before
// group membership takes effect.
func EnsureMembership(ctx context.Context, runner execx.Runner, username string) (bool, error) {
	if username == "root" {
		return false, nil
	}
	member, err := InGroup(username)
	if err != nil {
		return false, err
	}
	if member {
		return false, nil
	}
	if _, err := runner.Run(ctx, "usermod", "-aG", dockerGroup, username); err != nil {
		return false, fmt.Errorf("add %s to %s group: %w (fix: run the installer as root, or add the user manually)", username, dockerGroup, err)
	}
	return true, nil
}
