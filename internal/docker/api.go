package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	containerTypes "github.com/docker/docker/api/types/container"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	dockercontext "github.com/docker/go-sdk/context"
)

// APIRuntime drives the container engine through the Docker Engine API.
type APIRuntime struct {
	client *client.Client
}

// NewAPIRuntime connects lazily to the daemon at host. An empty host means the
// client library default (the local unix socket).
func NewAPIRuntime(host string) (*APIRuntime, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &APIRuntime{client: cli}, nil
}

// DetectHost resolves the daemon address from the current docker context
// (Docker Desktop, Colima, Podman...). Returns "" when detection fails.
func DetectHost() string {
	host, err := dockercontext.CurrentDockerHost()
	if err != nil {
		return ""
	}
	return host
}

// Close releases the underlying client.
func (r *APIRuntime) Close() error {
	return r.client.Close()
}

func (r *APIRuntime) IsAvailable() bool { return r.client != nil }

func (r *APIRuntime) IsDaemonRunning(ctx context.Context) bool {
	_, err := r.client.Ping(ctx)
	return err == nil
}

func (r *APIRuntime) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := r.client.ContainerInspect(ctx, name); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, classifyAPI(ctx, "inspect", name, err)
	}
	return true, nil
}

func (r *APIRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	info, err := r.client.ContainerInspect(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, classifyAPI(ctx, "inspect", name, err)
	}
	return info.State != nil && info.State.Running, nil
}

func (r *APIRuntime) Inspect(ctx context.Context, name string) (ContainerInfo, error) {
	resp, err := r.client.ContainerInspect(ctx, name)
	if err != nil {
		return ContainerInfo{}, classifyAPI(ctx, "inspect", name, err)
	}
	info := ContainerInfo{ID: resp.ID}
	if resp.State != nil {
		info.Running = resp.State.Running
	}
	if resp.Config != nil {
		info.Labels = resp.Config.Labels
	}
	return info, nil
}

func (r *APIRuntime) Create(ctx context.Context, name, image string, cfg *ContainerConfig) (string, error) {
	if err := r.ensureImage(ctx, image); err != nil {
		return "", asRejected(classifyAPI(ctx, "create", name, err))
	}

	containerCfg, hostCfg := apiConfig(image, cfg, keepAlive)
	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", classifyAPI(ctx, "create", name, err)
	}

	if err := r.client.ContainerStart(ctx, resp.ID, containerTypes.StartOptions{}); err != nil {
		_ = r.client.ContainerRemove(ctx, resp.ID, containerTypes.RemoveOptions{Force: true})
		return "", classifyAPI(ctx, "create", name, err)
	}
	return resp.ID, nil
}

// apiConfig translates cfg into Engine API create parameters.
func apiConfig(image string, cfg *ContainerConfig, cmd []string) (*containerTypes.Config, *containerTypes.HostConfig) {
	containerCfg := &containerTypes.Config{
		Image:      image,
		Cmd:        cmd,
		WorkingDir: cfg.WorkingDir,
		Env:        cfg.envStrings(),
		Labels:     cfg.labels(),
	}

	hostCfg := &containerTypes.HostConfig{}
	for _, v := range cfg.Volumes {
		hostCfg.Binds = append(hostCfg.Binds, v.String())
	}
	for _, v := range cfg.NamedVolumes {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: v.Name,
			Target: v.ContainerPath,
		})
	}
	if cfg.CPULimit != nil {
		hostCfg.NanoCPUs = int64(*cfg.CPULimit * 1e9)
	}
	if cfg.MemoryLimit != nil {
		hostCfg.Memory = *cfg.MemoryLimit
	}
	return containerCfg, hostCfg
}

// ensureImage pulls image unless it is already present locally.
func (r *APIRuntime) ensureImage(ctx context.Context, image string) error {
	if _, err := r.client.ImageInspect(ctx, image); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, image, imageTypes.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

func (r *APIRuntime) Start(ctx context.Context, name string) error {
	if err := r.client.ContainerStart(ctx, name, containerTypes.StartOptions{}); err != nil {
		return classifyAPI(ctx, "start", name, err)
	}
	return nil
}

func (r *APIRuntime) Stop(ctx context.Context, name string) error {
	if err := r.client.ContainerStop(ctx, name, containerTypes.StopOptions{}); err != nil {
		return classifyAPI(ctx, "stop", name, err)
	}
	return nil
}

func (r *APIRuntime) Remove(ctx context.Context, name string, force bool) error {
	if err := r.client.ContainerRemove(ctx, name, containerTypes.RemoveOptions{Force: force}); err != nil {
		return classifyAPI(ctx, "remove", name, err)
	}
	return nil
}

// RunOnce runs cmd in a throwaway container from image and returns its stdout.
// A non-zero exit is reported as a rejection carrying the container's stderr.
func (r *APIRuntime) RunOnce(ctx context.Context, image string, cmd ...string) ([]byte, error) {
	if err := r.ensureImage(ctx, image); err != nil {
		return nil, asRejected(classifyAPI(ctx, "run", image, err))
	}

	containerCfg, hostCfg := apiConfig(image, &ContainerConfig{}, cmd)
	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, classifyAPI(ctx, "run", image, err)
	}
	defer func() {
		_ = r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, containerTypes.RemoveOptions{Force: true})
	}()

	waitCh, errCh := r.client.ContainerWait(ctx, resp.ID, containerTypes.WaitConditionNextExit)
	if err := r.client.ContainerStart(ctx, resp.ID, containerTypes.StartOptions{}); err != nil {
		return nil, classifyAPI(ctx, "run", image, err)
	}

	var exitCode int64
	select {
	case res := <-waitCh:
		exitCode = res.StatusCode
	case err := <-errCh:
		return nil, classifyAPI(ctx, "run", image, err)
	}

	logs, err := r.client.ContainerLogs(ctx, resp.ID, containerTypes.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, classifyAPI(ctx, "run", image, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("docker run %s: reading output: %w", image, err)
	}

	if exitCode != 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exited with code %d", exitCode)
		}
		return stdout.Bytes(), &OpError{Op: "run", Name: image, Err: ErrRejected, Msg: msg}
	}
	return stdout.Bytes(), nil
}

// classifyAPI maps an Engine API error onto the error taxonomy.
func classifyAPI(ctx context.Context, op, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("docker %s %s: %w", op, name, ctxErr)
	}

	var kind error
	switch {
	case client.IsErrConnectionFailed(err):
		kind = ErrDaemonNotRunning
	case cerrdefs.IsNotFound(err):
		kind = ErrNotFound
	case cerrdefs.IsConflict(err):
		kind = ErrConflict
	default:
		kind = ErrRejected
	}
	return &OpError{Op: op, Name: name, Err: kind, Msg: err.Error()}
}

// asRejected turns a not-found from image resolution into a rejection: a
// missing image is a bad configuration, not a missing container.
func asRejected(err error) error {
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Err == ErrNotFound {
		opErr.Err = ErrRejected
	}
	return err
}
