// Package execx is a thin seam over os/exec so installer steps can be
// exercised in tests without touching the host.
package execx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// System runs commands on the host.
type System struct{}

func (System) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s: %v, output: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

func (System) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
