// Package fake provides an in-memory docker.Runtime for tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/zpdzap/aoe/internal/docker"
)

type container struct {
	id      string
	image   string
	running bool
	cfg     docker.ContainerConfig
}

// Runtime is an in-memory container engine with the same semantics as the
// real runtimes. The exported fields script environment failures.
type Runtime struct {
	mu         sync.Mutex
	containers map[string]*container
	seq        int
	calls      []string

	// NotInstalled makes every call fail as if the client were missing.
	NotInstalled bool
	// DaemonDown makes every call fail as if the daemon were unreachable.
	DaemonDown bool
	// Images, when non-nil, is the set of images Create can resolve.
	Images map[string]bool

	// Hooks run before the default behavior; a non-nil error is returned as is.
	CreateFunc func(name, image string, cfg *docker.ContainerConfig) error
	StopFunc   func(name string) error
	RemoveFunc func(name string, force bool) error
}

var _ docker.Runtime = (*Runtime)(nil)

// New returns an empty fake runtime with a reachable daemon.
func New() *Runtime {
	return &Runtime{containers: make(map[string]*container)}
}

func (r *Runtime) IsAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.NotInstalled
}

func (r *Runtime) IsDaemonRunning(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.NotInstalled && !r.DaemonDown
}

// env must be called with r.mu held.
func (r *Runtime) env(op, name string) error {
	r.calls = append(r.calls, op+" "+name)
	switch {
	case r.NotInstalled:
		return &docker.OpError{Op: op, Name: name, Err: docker.ErrNotInstalled}
	case r.DaemonDown:
		return &docker.OpError{Op: op, Name: name, Err: docker.ErrDaemonNotRunning}
	}
	return nil
}

func (r *Runtime) Exists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("inspect", name); err != nil {
		return false, err
	}
	_, ok := r.containers[name]
	return ok, nil
}

func (r *Runtime) IsRunning(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("inspect", name); err != nil {
		return false, err
	}
	c, ok := r.containers[name]
	return ok && c.running, nil
}

func (r *Runtime) Inspect(ctx context.Context, name string) (docker.ContainerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("inspect", name); err != nil {
		return docker.ContainerInfo{}, err
	}
	c, ok := r.containers[name]
	if !ok {
		return docker.ContainerInfo{}, &docker.OpError{Op: "inspect", Name: name, Err: docker.ErrNotFound}
	}
	labels := make(map[string]string, len(c.cfg.Labels)+1)
	for k, v := range c.cfg.Labels {
		labels[k] = v
	}
	labels[docker.ManagedLabel] = "true"
	return docker.ContainerInfo{ID: c.id, Running: c.running, Labels: labels}, nil
}

func (r *Runtime) Create(ctx context.Context, name, image string, cfg *docker.ContainerConfig) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("create", name); err != nil {
		return "", err
	}
	if r.CreateFunc != nil {
		if err := r.CreateFunc(name, image, cfg); err != nil {
			return "", err
		}
	}
	if _, ok := r.containers[name]; ok {
		return "", &docker.OpError{Op: "create", Name: name, Err: docker.ErrConflict,
			Msg: fmt.Sprintf("the container name %q is already in use", name)}
	}
	if r.Images != nil && !r.Images[image] {
		return "", &docker.OpError{Op: "create", Name: name, Err: docker.ErrRejected,
			Msg: fmt.Sprintf("unable to find image %q", image)}
	}

	r.seq++
	c := &container{
		id:      fmt.Sprintf("fake%012d", r.seq),
		image:   image,
		running: true,
		cfg:     *cfg,
	}
	r.containers[name] = c
	return c.id, nil
}

func (r *Runtime) Start(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("start", name); err != nil {
		return err
	}
	c, ok := r.containers[name]
	if !ok {
		return &docker.OpError{Op: "start", Name: name, Err: docker.ErrNotFound}
	}
	c.running = true
	return nil
}

func (r *Runtime) Stop(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.env("stop", name); err != nil {
		return err
	}
	if r.StopFunc != nil {
		if err := r.StopFunc(name); err != nil {
			return err
		}
	}
	c, ok := r.containers[name]
	if !ok {
		return &docker.OpError{Op: "stop", Name: name, Err: docker.ErrNotFound}
	}
	c.running = false
	return nil
}

func (r *Runtime) Remove(ctx context.Context, name string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op := "remove"
	if force {
		op = "remove -f"
	}
	if err := r.env(op, name); err != nil {
		return err
	}
	if r.RemoveFunc != nil {
		if err := r.RemoveFunc(name, force); err != nil {
			return err
		}
	}
	c, ok := r.containers[name]
	if !ok {
		return &docker.OpError{Op: "remove", Name: name, Err: docker.ErrNotFound}
	}
	if c.running && !force {
		return &docker.OpError{Op: "remove", Name: name, Err: docker.ErrConflict,
			Msg: "cannot remove a running container"}
	}
	delete(r.containers, name)
	return nil
}

// Replace swaps a container for a fresh one under the same name, keeping its
// configuration, and returns the new id. It models an out-of-band recreate.
func (r *Runtime) Replace(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	if !ok {
		return "", false
	}
	r.seq++
	c.id = fmt.Sprintf("fake%012d", r.seq)
	return c.id, true
}

// Vanish deletes a container behind the manager's back.
func (r *Runtime) Vanish(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, name)
}

// Config returns the configuration a container was created with.
func (r *Runtime) Config(name string) (docker.ContainerConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	if !ok {
		return docker.ContainerConfig{}, false
	}
	return c.cfg, true
}

// Calls returns the operations performed so far, e.g. "stop aoe-sandbox-1234".
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
