package docker

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ContainerConfig describes how a sandbox container is created. It is built once
// by the caller and treated as read-only by every runtime.
type ContainerConfig struct {
	WorkingDir   string
	Volumes      []Volume
	NamedVolumes []NamedVolume
	Environment  []EnvVar
	CPULimit     *float64 // cores; nil means unconstrained
	MemoryLimit  *int64   // bytes; nil means unconstrained
	Labels       map[string]string
}

// Volume is a host bind mount.
type Volume struct {
	HostPath      string
	ContainerPath string
	Mode          string // "ro", "rw", or empty for the runtime default
}

// String renders the mount in `-v` syntax.
func (v Volume) String() string {
	s := v.HostPath + ":" + v.ContainerPath
	if v.Mode != "" {
		s += ":" + v.Mode
	}
	return s
}

// NamedVolume is a runtime-managed volume mounted into the container.
type NamedVolume struct {
	Name          string
	ContainerPath string
}

func (v NamedVolume) String() string { return v.Name + ":" + v.ContainerPath }

// EnvVar is one entry of the container's process environment.
type EnvVar struct {
	Key   string
	Value string
}

func (e EnvVar) String() string { return e.Key + "=" + e.Value }

// Validate catches configurations every runtime would refuse.
func (c *ContainerConfig) Validate() error {
	if c.WorkingDir != "" && !path.IsAbs(c.WorkingDir) {
		return fmt.Errorf("working dir %q is not absolute", c.WorkingDir)
	}
	for _, v := range c.Volumes {
		if !filepath.IsAbs(v.HostPath) {
			return fmt.Errorf("volume host path %q is not absolute", v.HostPath)
		}
		if !path.IsAbs(v.ContainerPath) {
			return fmt.Errorf("volume container path %q is not absolute", v.ContainerPath)
		}
	}
	for _, v := range c.NamedVolumes {
		if v.Name == "" || strings.ContainsAny(v.Name, ":/") {
			return fmt.Errorf("invalid volume name %q", v.Name)
		}
		if !path.IsAbs(v.ContainerPath) {
			return fmt.Errorf("volume container path %q is not absolute", v.ContainerPath)
		}
	}
	for _, e := range c.Environment {
		if e.Key == "" || strings.Contains(e.Key, "=") {
			return fmt.Errorf("invalid environment key %q", e.Key)
		}
	}
	if c.CPULimit != nil && *c.CPULimit <= 0 {
		return fmt.Errorf("cpu limit must be positive, got %v", *c.CPULimit)
	}
	if c.MemoryLimit != nil && *c.MemoryLimit <= 0 {
		return fmt.Errorf("memory limit must be positive, got %d", *c.MemoryLimit)
	}
	return nil
}

// envStrings renders the environment in KEY=VALUE form, keeping order.
func (c *ContainerConfig) envStrings() []string {
	env := make([]string, 0, len(c.Environment))
	for _, e := range c.Environment {
		env = append(env, e.String())
	}
	return env
}

// labels returns the container labels, ManagedLabel included.
func (c *ContainerConfig) labels() map[string]string {
	labels := map[string]string{ManagedLabel: "true"}
	for k, v := range c.Labels {
		labels[k] = v
	}
	return labels
}

// labelStrings renders labels in key=value form, sorted by key.
func (c *ContainerConfig) labelStrings() []string {
	labels := c.labels()
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+labels[k])
	}
	return out
}
