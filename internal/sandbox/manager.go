// Package sandbox keeps a session's persisted sandbox record consistent with
// the container the runtime actually has.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zpdzap/aoe/internal/agent"
	"github.com/zpdzap/aoe/internal/config"
	"github.com/zpdzap/aoe/internal/docker"
	"github.com/zpdzap/aoe/internal/session"
)

// WorkspaceRoot is where project directories are mounted in the container.
const WorkspaceRoot = "/workspace"

// Manager handles sandbox container lifecycle and the session records that
// track it. Lifecycle calls for one session must not run concurrently.
type Manager struct {
	mu       sync.Mutex // serializes store read-modify-write
	rt       docker.Runtime
	store    session.Store
	defaults Defaults
	log      *zap.Logger
	now      func() time.Time
}

// NewManager creates a new sandbox manager.
func NewManager(rt docker.Runtime, store session.Store, defaults Defaults, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		rt:       rt,
		store:    store,
		defaults: defaults,
		log:      log,
		now:      time.Now,
	}
}

// StartOptions override the configured defaults for one start.
type StartOptions struct {
	Image string
	Yolo  *bool
}

// Preflight checks that the runtime client is installed and its daemon answers.
func (m *Manager) Preflight(ctx context.Context) error {
	if !m.rt.IsAvailable() {
		return fmt.Errorf("%w: install docker to run sandboxed sessions", docker.ErrNotInstalled)
	}
	if !m.rt.IsDaemonRunning(ctx) {
		return fmt.Errorf("%w: start the docker daemon and retry", docker.ErrDaemonNotRunning)
	}
	return nil
}

// WorkDir is the session's working directory inside its container.
func WorkDir(inst *session.Instance) string {
	return path.Join(WorkspaceRoot, filepath.Base(inst.ProjectPath))
}

func toolOf(inst *session.Instance) (agent.Tool, error) {
	name := inst.Tool
	if name == "" {
		name = session.DefaultTool
	}
	return agent.Lookup(name)
}

// ContainerConfig builds the creation config for inst: the project bind mount,
// the tool's credential volume, the configured mounts and environment, and
// detected package caches.
func (m *Manager) ContainerConfig(inst *session.Instance) (*docker.ContainerConfig, error) {
	tool, err := toolOf(inst)
	if err != nil {
		return nil, err
	}
	workdir := WorkDir(inst)

	cfg := &docker.ContainerConfig{
		WorkingDir:  workdir,
		Environment: append([]docker.EnvVar(nil), m.defaults.Environment...),
	}
	mounted := make(map[string]bool)
	bind := func(v docker.Volume) {
		if !mounted[v.ContainerPath] {
			mounted[v.ContainerPath] = true
			cfg.Volumes = append(cfg.Volumes, v)
		}
	}
	named := func(v docker.NamedVolume) {
		if !mounted[v.ContainerPath] {
			mounted[v.ContainerPath] = true
			cfg.NamedVolumes = append(cfg.NamedVolumes, v)
		}
	}

	bind(docker.Volume{HostPath: inst.ProjectPath, ContainerPath: workdir})
	if wt := inst.Worktree; wt != nil && wt.MainRepoPath != "" {
		// A worktree's .git file points at the main repository by host path.
		gitDir := filepath.Join(wt.MainRepoPath, ".git")
		bind(docker.Volume{HostPath: gitDir, ContainerPath: gitDir})
	}
	for _, v := range m.defaults.Volumes {
		bind(v)
	}
	named(docker.NamedVolume{Name: tool.AuthVolume(), ContainerPath: tool.ConfigDir})
	for _, v := range m.defaults.NamedVolumes {
		named(v)
	}
	if m.defaults.CacheVolumes {
		for _, v := range config.Detect(inst.ProjectPath).CacheVolumes {
			named(v)
		}
	}

	if m.defaults.CPULimit != nil {
		cpu := *m.defaults.CPULimit
		cfg.CPULimit = &cpu
	}
	if m.defaults.MemoryLimit != nil {
		mem := *m.defaults.MemoryLimit
		cfg.MemoryLimit = &mem
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Start makes sure inst has a running sandbox container and records it. The
// recorded container is reused (and started if stopped) while the runtime still
// has it under the same id. A container left under the name by this session
// with no matching record is replaced. A container owned by anything else is
// never touched: Start fails with a conflict. On failure the record keeps no
// container id.
func (m *Manager) Start(ctx context.Context, inst *session.Instance, opts StartOptions) error {
	if err := m.Preflight(ctx); err != nil {
		return err
	}

	prev := inst.Sandbox
	image := opts.Image
	if image == "" && prev != nil && prev.Image != nil {
		image = *prev.Image
	}
	if image == "" {
		image = m.defaults.Image
	}
	yolo := m.yoloMode(prev, opts)

	c := docker.NewContainer(m.rt, inst.ID, image)
	log := m.log.With(zap.String("session", inst.ID), zap.String("container", c.Name()))

	live, exists, err := inspect(ctx, c)
	if err != nil {
		return err
	}
	switch {
	case exists && !c.Owned(live):
		inst.Sandbox = newRecord(c, image, yolo)
		log.Warn("sandbox name held by another container", zap.String("owner", live.Session()))
		return m.failStart(inst, &docker.OpError{Op: "create", Name: c.Name(), Err: docker.ErrConflict,
			Msg: fmt.Sprintf("name is held by container %s, which this session does not own", shortID(live.ID))})
	case exists && prev.State() == session.SandboxActive && prev.ID() == live.ID:
		if !live.Running {
			log.Info("starting stopped sandbox")
			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("starting sandbox for session %s: %w", inst.ID, err)
			}
		}
		if opts.Yolo != nil {
			prev.YoloMode = yolo
			return m.persist(inst)
		}
		return nil
	case exists:
		log.Warn("replacing unrecorded sandbox container", zap.String("id", live.ID))
		if err := c.Remove(ctx, true); err != nil && !docker.IsNotFound(err) {
			return fmt.Errorf("reclaiming sandbox name for session %s: %w", inst.ID, err)
		}
	}

	info := newRecord(c, image, yolo)
	inst.Sandbox = info

	cfg, err := m.ContainerConfig(inst)
	if err != nil {
		err = &docker.OpError{Op: "create", Name: c.Name(), Err: docker.ErrRejected, Msg: err.Error()}
		return m.failStart(inst, err)
	}

	log.Info("creating sandbox", zap.String("image", image))
	id, err := c.Create(ctx, cfg)
	if err != nil {
		return m.failStart(inst, err)
	}
	info.Activate(id, m.now().UTC())
	log.Info("sandbox created", zap.String("id", id))
	return m.persist(inst)
}

func newRecord(c *docker.Container, image string, yolo *bool) *session.SandboxInfo {
	return &session.SandboxInfo{
		Enabled:       true,
		ContainerName: c.Name(),
		Image:         &image,
		YoloMode:      yolo,
	}
}

// yoloMode resolves the yolo setting for a start: the option, then the
// recorded value, then the configured default. An explicit false is kept so a
// later recreate does not fall back to a true default.
func (m *Manager) yoloMode(prev *session.SandboxInfo, opts StartOptions) *bool {
	var yolo bool
	switch {
	case opts.Yolo != nil:
		yolo = *opts.Yolo
	case prev != nil && prev.YoloMode != nil:
		yolo = *prev.YoloMode
	case m.defaults.YoloMode:
		yolo = true
	default:
		return nil
	}
	return &yolo
}

// inspect looks up the container under c's name. A free name is
// (zero, false, nil).
func inspect(ctx context.Context, c *docker.Container) (docker.ContainerInfo, bool, error) {
	info, err := c.Inspect(ctx)
	if docker.IsNotFound(err) {
		return docker.ContainerInfo{}, false, nil
	}
	if err != nil {
		return docker.ContainerInfo{}, false, err
	}
	return info, true, nil
}

// current reports whether live is the container inst's record points at.
func current(c *docker.Container, inst *session.Instance, live docker.ContainerInfo) bool {
	return c.Owned(live) && live.ID == inst.Sandbox.ID()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// failStart records the attempt without a container id and returns err.
func (m *Manager) failStart(inst *session.Instance, err error) error {
	err = fmt.Errorf("creating sandbox for session %s: %w", inst.ID, err)
	if perr := m.persist(inst); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// Disable stops and removes the session's container and reverts the session to
// host execution. The record is only cleared once the runtime confirms the
// session's container is gone. A container under the name that this session
// does not own is left alone.
func (m *Manager) Disable(ctx context.Context, inst *session.Instance) error {
	if !inst.IsSandboxed() {
		return nil
	}
	if err := m.Preflight(ctx); err != nil {
		return err
	}

	c := docker.NewContainer(m.rt, inst.ID, "")
	log := m.log.With(zap.String("session", inst.ID), zap.String("container", c.Name()))

	live, exists, err := inspect(ctx, c)
	if err != nil {
		return err
	}
	if exists && !c.Owned(live) {
		log.Warn("sandbox name held by another container, leaving it", zap.String("owner", live.Session()))
		exists = false
	}

	if exists {
		if err := m.remove(ctx, c, log); err != nil {
			return fmt.Errorf("removing sandbox for session %s: %w", inst.ID, err)
		}
		live, exists, err = inspect(ctx, c)
		if err != nil {
			return err
		}
		if exists && c.Owned(live) {
			return &docker.OpError{Op: "remove", Name: c.Name(), Err: docker.ErrConflict,
				Msg: "container still exists after removal"}
		}
	}

	inst.Sandbox.Disable()
	log.Info("sandbox removed")
	return m.persist(inst)
}

// remove stops c and deletes it, forcing the delete when a graceful one fails.
func (m *Manager) remove(ctx context.Context, c *docker.Container, log *zap.Logger) error {
	if err := c.Stop(ctx); err != nil && !docker.IsNotFound(err) {
		if docker.IsUnavailable(err) {
			return err
		}
		log.Warn("stop failed", zap.Error(err))
	}
	if err := c.Remove(ctx, false); err != nil && !docker.IsNotFound(err) {
		if docker.IsUnavailable(err) {
			return err
		}
		log.Warn("remove failed, forcing", zap.Error(err))
		if err := c.Remove(ctx, true); err != nil && !docker.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Delete removes the session's sandbox, if any, and then the session itself.
func (m *Manager) Delete(ctx context.Context, inst *session.Instance) error {
	if err := m.Disable(ctx, inst); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return session.Delete(m.store, inst.ID)
}

// Status queries the runtime for the live state of inst's container. A
// container under the name that is not the recorded one reports as absent.
func (m *Manager) Status(ctx context.Context, inst *session.Instance) (Status, error) {
	if !inst.IsSandboxed() {
		return StatusHost, nil
	}
	c := docker.NewContainer(m.rt, inst.ID, "")
	live, exists, err := inspect(ctx, c)
	if err != nil {
		return "", err
	}
	if !exists || !c.Owned(live) {
		return StatusAbsent, nil
	}
	if inst.Sandbox.State() == session.SandboxActive && !current(c, inst, live) {
		return StatusAbsent, nil
	}
	if live.Running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// Reconcile syncs the stored records with the runtime: sandboxed sessions
// whose recorded container no longer exists lose the stale id and creation
// time, keeping the intent so the next start recreates it. A name now held by
// a different container counts as gone. It returns the sessions that changed.
func (m *Manager) Reconcile(ctx context.Context) ([]*session.Instance, error) {
	if err := m.Preflight(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	instances, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	var changed []*session.Instance
	for _, inst := range instances {
		if inst.Sandbox.State() != session.SandboxActive {
			continue
		}
		c := docker.NewContainer(m.rt, inst.ID, "")
		live, exists, err := inspect(ctx, c)
		if err != nil {
			return nil, err
		}
		if !exists || !current(c, inst, live) {
			m.log.Info("recorded container gone, forgetting id",
				zap.String("session", inst.ID), zap.String("id", inst.Sandbox.ID()),
				zap.String("live", live.ID))
			inst.Sandbox.Forget()
			changed = append(changed, inst)
		}
	}

	if len(changed) > 0 {
		if err := m.store.Save(instances); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

// List returns all sessions sorted by creation time.
func (m *Manager) List() ([]*session.Instance, error) {
	m.mu.Lock()
	instances, err := m.store.Load()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
	return instances, nil
}

// ExecArgs returns the docker arguments that run inst's tool inside its
// container.
func ExecArgs(inst *session.Instance) ([]string, error) {
	tool, err := toolOf(inst)
	if err != nil {
		return nil, err
	}
	yolo := inst.Sandbox != nil && inst.Sandbox.YoloMode != nil && *inst.Sandbox.YoloMode
	return agent.ExecArgs(docker.GenerateName(inst.ID), WorkDir(inst), tool.Command(yolo)), nil
}

func (m *Manager) persist(inst *session.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := session.Put(m.store, inst); err != nil {
		return fmt.Errorf("saving session %s: %w", inst.ID, err)
	}
	return nil
}
