package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultBinary is the runtime client CLIRuntime invokes unless told otherwise.
const DefaultBinary = "docker"

// commandRunner executes the runtime binary and returns stdout and stderr
// separately so pull progress never ends up in a container id.
type commandRunner func(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)

// CLIRuntime drives the container engine through its command-line client.
type CLIRuntime struct {
	binary   string
	run      commandRunner
	lookPath func(string) (string, error)
}

// NewCLIRuntime returns a runtime that shells out to binary ("docker" when
// empty). Any docker-compatible client works, e.g. podman.
func NewCLIRuntime(binary string) *CLIRuntime {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLIRuntime{
		binary:   binary,
		run:      execRunner,
		lookPath: exec.LookPath,
	}
}

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (r *CLIRuntime) IsAvailable() bool {
	_, err := r.lookPath(r.binary)
	return err == nil
}

func (r *CLIRuntime) IsDaemonRunning(ctx context.Context) bool {
	_, _, err := r.run(ctx, r.binary, "info", "--format", "{{.ServerVersion}}")
	return err == nil
}

func (r *CLIRuntime) Exists(ctx context.Context, name string) (bool, error) {
	_, stderr, err := r.run(ctx, r.binary, "container", "inspect", "--format", "{{.Id}}", name)
	if err != nil {
		cerr := r.classify(ctx, "inspect", name, stderr, err)
		if IsNotFound(cerr) {
			return false, nil
		}
		return false, cerr
	}
	return true, nil
}

func (r *CLIRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	stdout, stderr, err := r.run(ctx, r.binary, "container", "inspect", "--format", "{{.State.Running}}", name)
	if err != nil {
		cerr := r.classify(ctx, "inspect", name, stderr, err)
		if IsNotFound(cerr) {
			return false, nil
		}
		return false, cerr
	}
	return strings.TrimSpace(string(stdout)) == "true", nil
}

// inspectFormat prints id, running state and labels on one tab-separated line.
const inspectFormat = "{{.Id}}\t{{.State.Running}}\t{{json .Config.Labels}}"

func (r *CLIRuntime) Inspect(ctx context.Context, name string) (ContainerInfo, error) {
	stdout, stderr, err := r.run(ctx, r.binary, "container", "inspect", "--format", inspectFormat, name)
	if err != nil {
		return ContainerInfo{}, r.classify(ctx, "inspect", name, stderr, err)
	}
	info, err := parseInspect(lastLine(stdout))
	if err != nil {
		return ContainerInfo{}, &OpError{Op: "inspect", Name: name, Err: ErrRejected, Msg: err.Error()}
	}
	return info, nil
}

func parseInspect(line string) (ContainerInfo, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 || fields[0] == "" {
		return ContainerInfo{}, fmt.Errorf("unexpected inspect output %q", line)
	}
	info := ContainerInfo{ID: fields[0], Running: fields[1] == "true"}
	if err := json.Unmarshal([]byte(fields[2]), &info.Labels); err != nil {
		return ContainerInfo{}, fmt.Errorf("parsing labels: %w", err)
	}
	return info, nil
}

func (r *CLIRuntime) Create(ctx context.Context, name, image string, cfg *ContainerConfig) (string, error) {
	args := runArgs(name, image, cfg)
	stdout, stderr, err := r.run(ctx, r.binary, args...)
	if err != nil {
		cerr := r.classify(ctx, "create", name, stderr, err)
		// `run -d` can leave a created-but-not-started container behind. A
		// conflict means the name belongs to someone else, so leave it alone.
		if !IsConflict(cerr) && !IsUnavailable(cerr) {
			_, _, _ = r.run(ctx, r.binary, "rm", "-f", name)
		}
		return "", cerr
	}
	return lastLine(stdout), nil
}

// runArgs builds the `docker run` invocation for cfg.
func runArgs(name, image string, cfg *ContainerConfig) []string {
	args := []string{"run", "-d", "--name", name}
	for _, l := range cfg.labelStrings() {
		args = append(args, "--label", l)
	}
	if cfg.WorkingDir != "" {
		args = append(args, "-w", cfg.WorkingDir)
	}
	for _, v := range cfg.Volumes {
		args = append(args, "-v", v.String())
	}
	for _, v := range cfg.NamedVolumes {
		args = append(args, "-v", v.String())
	}
	for _, e := range cfg.Environment {
		args = append(args, "-e", e.String())
	}
	if cfg.CPULimit != nil {
		args = append(args, "--cpus", strconv.FormatFloat(*cfg.CPULimit, 'f', -1, 64))
	}
	if cfg.MemoryLimit != nil {
		args = append(args, "--memory", strconv.FormatInt(*cfg.MemoryLimit, 10))
	}
	args = append(args, image)
	return append(args, keepAlive...)
}

func (r *CLIRuntime) Start(ctx context.Context, name string) error {
	if _, stderr, err := r.run(ctx, r.binary, "start", name); err != nil {
		return r.classify(ctx, "start", name, stderr, err)
	}
	return nil
}

func (r *CLIRuntime) Stop(ctx context.Context, name string) error {
	if _, stderr, err := r.run(ctx, r.binary, "stop", name); err != nil {
		return r.classify(ctx, "stop", name, stderr, err)
	}
	return nil
}

func (r *CLIRuntime) Remove(ctx context.Context, name string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, name)
	if _, stderr, err := r.run(ctx, r.binary, args...); err != nil {
		return r.classify(ctx, "remove", name, stderr, err)
	}
	return nil
}

// RunOnce runs cmd in a throwaway container from image and returns its stdout.
func (r *CLIRuntime) RunOnce(ctx context.Context, image string, cmd ...string) ([]byte, error) {
	args := append([]string{"run", "--rm", image}, cmd...)
	stdout, stderr, err := r.run(ctx, r.binary, args...)
	if err != nil {
		return stdout, r.classify(ctx, "run", image, stderr, err)
	}
	return stdout, nil
}

// classify maps a failed invocation onto the error taxonomy using the
// client's diagnostic text.
func (r *CLIRuntime) classify(ctx context.Context, op, name string, stderr []byte, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("docker %s %s: %w", op, name, ctxErr)
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return &OpError{Op: op, Name: name, Err: ErrNotInstalled, Msg: execErr.Error()}
	}

	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)

	var kind error
	switch {
	case strings.Contains(lower, "cannot connect to the docker daemon"),
		strings.Contains(lower, "is the docker daemon running"),
		strings.Contains(lower, "error during connect"):
		kind = ErrDaemonNotRunning
	case strings.Contains(lower, "no such container"),
		strings.Contains(lower, "no such object"):
		kind = ErrNotFound
	case strings.Contains(lower, "is already in use"),
		strings.Contains(lower, "cannot remove a running container"),
		strings.Contains(lower, "stop the container before"),
		strings.Contains(lower, "daemon: conflict."):
		kind = ErrConflict
	default:
		kind = ErrRejected
	}
	return &OpError{Op: op, Name: name, Err: kind, Msg: msg}
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
