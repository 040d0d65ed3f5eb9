package dockercli

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type fakeRunner struct {
	commands [][]string
	outputs  map[string]string // keyed by first two args, e.g. "ps -aq"
	missing  bool
	err      error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.commands = append(f.commands, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	if len(args) >= 1 {
		key := args[0]
		if len(args) >= 2 {
			key = args[0] + " " + args[1]
		}
		for match, out := range f.outputs {
			if strings.HasPrefix(key, match) {
				return []byte(out), nil
			}
		}
	}
	return []byte(""), nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing {
		return "", fmt.Errorf("%s not found", name)
	}
	return "/usr/bin/" + name, nil
}

func TestRunArgs(t *testing.T) {
	spec := RunSpec{
		Image:       "skybridge/agent:latest",
		DataDir:     "/srv/skybridge",
		UIPort:      8090,
		MetricsPort: 9188,
		Env: map[string]string{
			"SKYBRIDGE_TOKEN":     "tok",
			"SKYBRIDGE_AGENT_ID":  "a1",
			"SKYBRIDGE_TENANT_ID": "t1",
		},
	}
	args := RunArgs(spec)

	want := []string{
		"run", "-d",
		"--name", ContainerName,
		"--restart", "unless-stopped",
		"-p", "8090:8090",
		"-p", "9188:9188",
		"-v", "/srv/skybridge:/var/lib/skybridge",
		"-e", "SKYBRIDGE_AGENT_ID=a1",
		"-e", "SKYBRIDGE_TENANT_ID=t1",
		"-e", "SKYBRIDGE_TOKEN=tok",
		"-e", "SKYBRIDGE_DATA_DIR=/var/lib/skybridge",
		"-e", "SKYBRIDGE_UI_PORT=8090",
		"-e", "SKYBRIDGE_METRICS_PORT=9188",
		"skybridge/agent:latest",
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("RunArgs mismatch:\n got %v\nwant %v", args, want)
	}
}

func TestRemove_AbsentContainerIsNoop(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"ps": "\n"}}
	client := New(runner)

	if err := client.Remove(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(runner.commands) != 1 {
		t.Fatalf("expected only ps, got %v", runner.commands)
	}
}

func TestRemove_StopsAndRemoves(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"ps": "abc123\n"}}
	client := New(runner)

	if err := client.Remove(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(runner.commands) != 3 {
		t.Fatalf("expected ps, stop, rm; got %v", runner.commands)
	}
	if runner.commands[1][1] != "stop" || runner.commands[2][1] != "rm" {
		t.Fatalf("unexpected command order: %v", runner.commands)
	}
}

func TestInspect_ParsesState(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"inspect": `{"running":true,"health":"healthy","image":"skybridge/agent:latest","started":"2026-08-24T10:00:00Z"}` + "\n",
	}}
	client := New(runner)

	st, err := client.Inspect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Running || st.Health != "healthy" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestInspect_MissingContainer(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("Error: No such object: %s", ContainerName)}
	client := New(runner)

	st, err := client.Inspect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Running || st.Image != "" {
		t.Fatalf("expected zero status, got %+v", st)
	}
}

func TestAvailable_NoBinary(t *testing.T) {
	runner := &fakeRunner{missing: true}
	client := New(runner)
	if client.Available(context.Background()) {
		t.Fatal("expected unavailable without docker binary")
	}
}
