// Package dockercli drives the docker CLI for the single agent container
// this product manages.
package dockercli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/skybridge-io/skybridge/internal/install/execx"
)

// ContainerName is the fixed name of the managed agent container. The
// installer always stops and recreates it; there is no in-place upgrade.
const ContainerName = "skybridge-agent"

// Client wraps the docker binary.
type Client struct {
	runner execx.Runner
}

// New returns a Client backed by the given runner.
func New(runner execx.Runner) *Client {
	if runner == nil {
		runner = execx.System{}
	}
	return &Client{runner: runner}
}

// Available reports whether a working docker engine is reachable.
func (c *Client) Available(ctx context.Context) bool {
	if _, err := c.runner.LookPath("docker"); err != nil {
		return false
	}
	_, err := c.runner.Run(ctx, "docker", "version", "--format", "{{.Server.Version}}")
	return err == nil
}

// Pull pulls the agent image.
func (c *Client) Pull(ctx context.Context, image string) error {
	if _, err := c.runner.Run(ctx, "docker", "pull", image); err != nil {
		return fmt.Errorf("pull image %s: %w", image, err)
	}
	return nil
}

// Build builds the agent image from a build context directory.
func (c *Client) Build(ctx context.Context, image, contextDir string) error {
	if _, err := c.runner.Run(ctx, "docker", "build", "-t", image, contextDir); err != nil {
		return fmt.Errorf("build image %s: %w", image, err)
	}
	return nil
}

// Remove stops and removes the managed container. Absence is not an error.
func (c *Client) Remove(ctx context.Context) error {
	out, err := c.runner.Run(ctx, "docker", "ps", "-aq", "--filter", "name=^"+ContainerName+"$")
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	if strings.TrimSpace(string(out)) == "" {
		return nil
	}
	if _, err := c.runner.Run(ctx, "docker", "stop", ContainerName); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	if _, err := c.runner.Run(ctx, "docker", "rm", ContainerName); err != nil {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// RunSpec describes the agent container to launch.
type RunSpec struct {
	Image       string
	DataDir     string
	UIPort      int
	MetricsPort int
	Env         map[string]string
}

// RunArgs builds the docker run argument vector for spec. Split out so the
// exact invocation can be asserted in tests.
func RunArgs(spec RunSpec) []string {
	args := []string{
		"run", "-d",
		"--name", ContainerName,
		"--restart", "unless-stopped",
		"-p", fmt.Sprintf("%d:%d", spec.UIPort, spec.UIPort),
		"-p", fmt.Sprintf("%d:%d", spec.MetricsPort, spec.MetricsPort),
		"-v", spec.DataDir + ":/var/lib/skybridge",
	}
	// Deterministic env ordering keeps reruns diffable in logs.
	for _, key := range sortedKeys(spec.Env) {
		args = append(args, "-e", key+"="+spec.Env[key])
	}
	args = append(args,
		"-e", "SKYBRIDGE_DATA_DIR=/var/lib/skybridge",
		"-e", "SKYBRIDGE_UI_PORT="+strconv.Itoa(spec.UIPort),
		"-e", "SKYBRIDGE_METRICS_PORT="+strconv.Itoa(spec.MetricsPort),
	)
	args = append(args, spec.Image)
	return args
}

// Run launches a fresh agent container from spec.
func (c *Client) Run(ctx context.Context, spec RunSpec) error {
	args := RunArgs(spec)
	if _, err := c.runner.Run(ctx, "docker", args...); err != nil {
		return fmt.Errorf("run container: %w", err)
	}
	return nil
}

// Status describes the managed container as reported by docker inspect.
type Status struct {
	Running bool   `json:"running"`
	Health  string `json:"health"`
	Image   string `json:"image"`
	Started string `json:"started"`
}

// Inspect reports the managed container's state. A missing container yields
// a zero Status and no error.
func (c *Client) Inspect(ctx context.Context) (Status, error) {
	var st Status
	out, err := c.runner.Run(ctx, "docker", "inspect", ContainerName,
		"--format", `{"running":{{.State.Running}},"health":"{{if .State.Health}}{{.State.Health.Status}}{{end}}","image":"{{.Config.Image}}","started":"{{.State.StartedAt}}"}`)
	if err != nil {
		if strings.Contains(err.Error(), "No such object") {
			return st, nil
		}
		return st, fmt.Errorf("inspect container: %w", err)
	}
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(string(out))), &st); jsonErr != nil {
		return st, fmt.Errorf("parse inspect output: %w", jsonErr)
	}
	return st, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
