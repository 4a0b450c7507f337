// Package docker manages the lifecycle of per-session sandbox containers.
//
// A Runtime is a narrow view of a container engine. Two implementations talk
// to a real engine (CLIRuntime shells out to the docker binary, APIRuntime uses
// the Engine API); package fake provides an in-memory one for tests. Every call
// is a round trip: nothing about container state is cached locally.
package docker

import (
	"context"
	"fmt"
)

const (
	// ManagedLabel marks every container this tool creates.
	ManagedLabel = "aoe.managed"
	// SessionLabel carries the full id of the session that owns a container.
	// Names only hold an id prefix, so the label is what proves ownership.
	SessionLabel = "aoe.session"
)

// keepAlive is the command sandbox containers idle on until an agent is
// exec'd into them.
var keepAlive = []string{"sleep", "infinity"}

// Prober answers whether a runtime can be used at all.
type Prober interface {
	// IsAvailable reports whether the runtime client is present.
	IsAvailable() bool
	// IsDaemonRunning reports whether the runtime daemon answers.
	IsDaemonRunning(ctx context.Context) bool
}

// ContainerInfo is the live identity of a container.
type ContainerInfo struct {
	ID      string
	Running bool
	Labels  map[string]string
}

// Session returns the owning session id, or "" for a container this tool did
// not create.
func (i ContainerInfo) Session() string { return i.Labels[SessionLabel] }

// Runtime is the set of container operations the sandbox manager relies on.
// Containers are addressed by name.
type Runtime interface {
	Prober

	// Exists reports whether a container with this name exists. A missing
	// container is (false, nil).
	Exists(ctx context.Context, name string) (bool, error)

	// IsRunning reports whether the container is running. A missing container
	// is (false, nil).
	IsRunning(ctx context.Context, name string) (bool, error)

	// Inspect returns the container's id, state and labels. A missing
	// container is an ErrNotFound.
	Inspect(ctx context.Context, name string) (ContainerInfo, error)

	// Create creates and starts a container and returns its id.
	Create(ctx context.Context, name, image string, cfg *ContainerConfig) (string, error)

	// Start starts a stopped container. Starting a running one is a no-op.
	Start(ctx context.Context, name string) error

	// Stop stops a running container. Stopping a stopped one is a no-op.
	Stop(ctx context.Context, name string) error

	// Remove deletes the container. Without force a running container is a
	// conflict.
	Remove(ctx context.Context, name string, force bool) error
}

// Container is the sandbox container of one session.
type Container struct {
	rt      Runtime
	session string
	name    string
	image   string
}

// NewContainer returns a handle for the container of sessionID. Nothing is
// created until Create is called.
func NewContainer(rt Runtime, sessionID, image string) *Container {
	return &Container{
		rt:      rt,
		session: sessionID,
		name:    GenerateName(sessionID),
		image:   image,
	}
}

// Name returns the deterministic container name.
func (c *Container) Name() string { return c.name }

// Image returns the image the container is created from.
func (c *Container) Image() string { return c.image }

func (c *Container) Exists(ctx context.Context) (bool, error) {
	return c.rt.Exists(ctx, c.name)
}

func (c *Container) IsRunning(ctx context.Context) (bool, error) {
	return c.rt.IsRunning(ctx, c.name)
}

func (c *Container) Inspect(ctx context.Context) (ContainerInfo, error) {
	return c.rt.Inspect(ctx, c.name)
}

// Owned reports whether info describes a container created for this session.
func (c *Container) Owned(info ContainerInfo) bool {
	return info.Session() == c.session
}

// Create creates and starts the container labeled with its session. On
// success it is running and the returned id is non-empty.
func (c *Container) Create(ctx context.Context, cfg *ContainerConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", &OpError{Op: "create", Name: c.name, Err: ErrRejected, Msg: err.Error()}
	}
	labeled := *cfg
	labeled.Labels = make(map[string]string, len(cfg.Labels)+1)
	for k, v := range cfg.Labels {
		labeled.Labels[k] = v
	}
	labeled.Labels[SessionLabel] = c.session

	id, err := c.rt.Create(ctx, c.name, c.image, &labeled)
	if err != nil {
		return "", err
	}
	if id == "" {
		// Nothing can address a container we hold no id for.
		_ = c.rt.Remove(context.WithoutCancel(ctx), c.name, true)
		return "", &OpError{Op: "create", Name: c.name, Err: ErrRejected, Msg: "runtime returned an empty container id"}
	}
	return id, nil
}

func (c *Container) Start(ctx context.Context) error {
	return c.rt.Start(ctx, c.name)
}

func (c *Container) Stop(ctx context.Context) error {
	return c.rt.Stop(ctx, c.name)
}

func (c *Container) Remove(ctx context.Context, force bool) error {
	return c.rt.Remove(ctx, c.name, force)
}

func (c *Container) String() string {
	return fmt.Sprintf("%s (%s)", c.name, c.image)
}
