package docker

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers CLI invocations from a table keyed by subcommand.
type scriptedRunner struct {
	calls   [][]string
	replies map[string]reply
}

type reply struct {
	stdout string
	stderr string
	err    error
}

var errExit = errors.New("exit status 1")

func (s *scriptedRunner) run(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, args)
	r := s.replies[args[0]]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func newScripted(replies map[string]reply) (*CLIRuntime, *scriptedRunner) {
	s := &scriptedRunner{replies: replies}
	rt := NewCLIRuntime("")
	rt.run = s.run
	rt.lookPath = func(string) (string, error) { return "/usr/bin/docker", nil }
	return rt, s
}

func TestRunArgs(t *testing.T) {
	cfg := &ContainerConfig{
		WorkingDir:   "/workspace/app",
		Volumes:      []Volume{{HostPath: "/home/me/app", ContainerPath: "/workspace/app"}, {HostPath: "/etc/gitconfig", ContainerPath: "/etc/gitconfig", Mode: "ro"}},
		NamedVolumes: []NamedVolume{{Name: "aoe-claude-auth", ContainerPath: "/root/.claude"}},
		Environment:  []EnvVar{{Key: "TERM", Value: "xterm"}, {Key: "LANG", Value: "C.UTF-8"}},
		CPULimit:     ptr(1.5),
		MemoryLimit:  ptr(int64(1073741824)),
	}

	got := runArgs("aoe-sandbox-abcd1234", "aoe-sandbox:latest", cfg)
	want := []string{
		"run", "-d", "--name", "aoe-sandbox-abcd1234", "--label", "aoe.managed=true",
		"-w", "/workspace/app",
		"-v", "/home/me/app:/workspace/app",
		"-v", "/etc/gitconfig:/etc/gitconfig:ro",
		"-v", "aoe-claude-auth:/root/.claude",
		"-e", "TERM=xterm",
		"-e", "LANG=C.UTF-8",
		"--cpus", "1.5",
		"--memory", "1073741824",
		"aoe-sandbox:latest", "sleep", "infinity",
	}
	assert.Equal(t, want, got)
}

func TestRunArgsUnconstrained(t *testing.T) {
	got := strings.Join(runArgs("n", "alpine", &ContainerConfig{}), " ")
	assert.NotContains(t, got, "--cpus")
	assert.NotContains(t, got, "--memory")
	assert.NotContains(t, got, "-w")
}

func TestRunArgsLabels(t *testing.T) {
	cfg := &ContainerConfig{Labels: map[string]string{SessionLabel: "abcd1234ef567890", "team": "infra"}}

	got := runArgs("aoe-sandbox-abcd1234", "alpine", cfg)
	assert.Equal(t, []string{
		"run", "-d", "--name", "aoe-sandbox-abcd1234",
		"--label", "aoe.managed=true",
		"--label", "aoe.session=abcd1234ef567890",
		"--label", "team=infra",
		"alpine", "sleep", "infinity",
	}, got)
}

func TestCLIInspect(t *testing.T) {
	rt, s := newScripted(map[string]reply{
		"container": {stdout: "3f1a2b\tfalse\t{\"aoe.managed\":\"true\",\"aoe.session\":\"abcd1234ef567890\"}\n"},
	})

	info, err := rt.Inspect(context.Background(), "aoe-sandbox-abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "3f1a2b", info.ID)
	assert.False(t, info.Running)
	assert.Equal(t, "abcd1234ef567890", info.Session())
	assert.Equal(t, []string{"container", "inspect", "--format", inspectFormat, "aoe-sandbox-abcd1234"}, s.calls[0])
}

func TestCLIInspectUnlabeled(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"container": {stdout: "9e8d7c\ttrue\tnull\n"},
	})

	info, err := rt.Inspect(context.Background(), "aoe-sandbox-abcd1234")
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Empty(t, info.Session())
}

func TestCLIInspectNotFound(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"container": {stderr: "Error response from daemon: No such container: aoe-sandbox-abc", err: errExit},
	})

	_, err := rt.Inspect(context.Background(), "aoe-sandbox-abc")
	assert.True(t, IsNotFound(err))
}

func TestCLIExistsNotFound(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"container": {stderr: "Error response from daemon: No such container: aoe-sandbox-abc", err: errExit},
	})

	exists, err := rt.Exists(context.Background(), "aoe-sandbox-abc")
	require.NoError(t, err)
	assert.False(t, exists)

	running, err := rt.IsRunning(context.Background(), "aoe-sandbox-abc")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestCLIIsRunning(t *testing.T) {
	rt, s := newScripted(map[string]reply{
		"container": {stdout: "true\n"},
	})

	running, err := rt.IsRunning(context.Background(), "aoe-sandbox-abc")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, []string{"container", "inspect", "--format", "{{.State.Running}}", "aoe-sandbox-abc"}, s.calls[0])
}

func TestCLIDaemonDown(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"container": {stderr: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?", err: errExit},
		"info":      {err: errExit},
	})

	_, err := rt.Exists(context.Background(), "aoe-sandbox-abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
	assert.True(t, IsUnavailable(err))
	assert.False(t, rt.IsDaemonRunning(context.Background()))
}

func TestCLINotInstalled(t *testing.T) {
	rt, _ := newScripted(nil)
	rt.run = func(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
		return nil, nil, &exec.Error{Name: binary, Err: exec.ErrNotFound}
	}
	rt.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	assert.False(t, rt.IsAvailable())
	_, err := rt.Exists(context.Background(), "aoe-sandbox-abc")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestCLICreate(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"run": {stdout: "3f1a2b\n", stderr: "Unable to find image 'alpine:latest' locally\nlatest: Pulling from library/alpine\n"},
	})

	id, err := rt.Create(context.Background(), "aoe-sandbox-abc", "alpine:latest", &ContainerConfig{})
	require.NoError(t, err)
	assert.Equal(t, "3f1a2b", id)
}

func TestCLICreateConflictKeepsExisting(t *testing.T) {
	rt, s := newScripted(map[string]reply{
		"run": {stderr: `docker: Error response from daemon: Conflict. The container name "/aoe-sandbox-abc" is already in use by container "3f1a2b".`, err: errExit},
	})

	_, err := rt.Create(context.Background(), "aoe-sandbox-abc", "alpine:latest", &ContainerConfig{})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	for _, call := range s.calls {
		assert.NotEqual(t, "rm", call[0], "conflicting container must not be removed")
	}
}

func TestCLICreateRejectedCleansUp(t *testing.T) {
	msg := "docker: Error response from daemon: invalid mount config for type \"bind\": bind source path does not exist: /nope."
	rt, s := newScripted(map[string]reply{
		"run": {stderr: msg, err: errExit},
		"rm":  {err: errExit},
	})

	_, err := rt.Create(context.Background(), "aoe-sandbox-abc", "alpine:latest", &ContainerConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, msg, opErr.Msg)
	assert.Equal(t, "create", opErr.Op)
	assert.Equal(t, []string{"rm", "-f", "aoe-sandbox-abc"}, s.calls[len(s.calls)-1])
}

func TestClassifyConflictWording(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"name in use", `docker: Error response from daemon: Conflict. The container name "/aoe-sandbox-abc" is already in use by container "3f1a2b".`, ErrConflict},
		{"running container", "Error response from daemon: cannot remove container \"/aoe-sandbox-abc\": container is running: stop the container before removing or force remove", ErrConflict},
		{"image named conflict", "docker: Error response from daemon: pull access denied for conflict-resolver, repository does not exist or may require 'docker login'.", ErrRejected},
		{"conflicting options", "docker: Conflicting options: --rm and -d.", ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newScripted(nil)
			err := rt.classify(context.Background(), "create", "aoe-sandbox-abc", []byte(tt.stderr), errExit)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCLICreateMisleadingConflictCleansUp(t *testing.T) {
	rt, s := newScripted(map[string]reply{
		"run": {stderr: "docker: Error response from daemon: manifest for conflict-resolver:latest not found: manifest unknown.", err: errExit},
	})

	_, err := rt.Create(context.Background(), "aoe-sandbox-abc", "conflict-resolver", &ContainerConfig{})
	assert.False(t, IsConflict(err))
	assert.Equal(t, []string{"rm", "-f", "aoe-sandbox-abc"}, s.calls[len(s.calls)-1])
}

func TestCLIRemove(t *testing.T) {
	rt, s := newScripted(map[string]reply{
		"rm": {stderr: "Error response from daemon: You cannot remove a running container 3f1a2b. Stop the container before attempting removal or force remove", err: errExit},
	})

	err := rt.Remove(context.Background(), "aoe-sandbox-abc", false)
	assert.True(t, IsConflict(err))
	assert.Equal(t, []string{"rm", "aoe-sandbox-abc"}, s.calls[0])

	s.replies["rm"] = reply{}
	require.NoError(t, rt.Remove(context.Background(), "aoe-sandbox-abc", true))
	assert.Equal(t, []string{"rm", "-f", "aoe-sandbox-abc"}, s.calls[1])
}

func TestCLIStopMissing(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"stop": {stderr: "Error response from daemon: No such container: aoe-sandbox-abc", err: errExit},
	})

	err := rt.Stop(context.Background(), "aoe-sandbox-abc")
	assert.True(t, IsNotFound(err))
}

func TestCLICanceledContext(t *testing.T) {
	rt, _ := newScripted(map[string]reply{
		"stop": {err: errExit},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rt.Stop(ctx, "aoe-sandbox-abc")
	assert.ErrorIs(t, err, context.Canceled)
}
