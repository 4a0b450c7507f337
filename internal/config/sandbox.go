package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"

	"github.com/zpdzap/aoe/internal/docker"
)

const (
	RuntimeCLI = "cli"
	RuntimeAPI = "api"
)

// Sandbox holds the defaults every sandboxed session is created with.
type Sandbox struct {
	Runtime      string   `yaml:"runtime,omitempty"` // cli or api
	Binary       string   `yaml:"binary,omitempty"`
	DockerHost   string   `yaml:"docker_host,omitempty"`
	Image        string   `yaml:"image"`
	CPULimit     float64  `yaml:"cpu_limit,omitempty"`
	MemoryLimit  string   `yaml:"memory_limit,omitempty"` // e.g. "4g"
	Environment  []string `yaml:"environment,omitempty"`  // KEY (passed through) or KEY=VALUE
	EnvFile      string   `yaml:"env_file,omitempty"`
	Volumes      []string `yaml:"volumes,omitempty"`       // host:container[:mode]
	NamedVolumes []string `yaml:"named_volumes,omitempty"` // name:container
	YoloMode     bool     `yaml:"yolo_mode,omitempty"`
	CacheVolumes bool     `yaml:"cache_volumes,omitempty"`
}

// CPU returns the cpu ceiling, or nil when unconstrained.
func (s Sandbox) CPU() *float64 {
	if s.CPULimit <= 0 {
		return nil
	}
	cpu := s.CPULimit
	return &cpu
}

// MemoryBytes parses the memory ceiling, or returns nil when unconstrained.
func (s Sandbox) MemoryBytes() (*int64, error) {
	if s.MemoryLimit == "" {
		return nil, nil
	}
	n, err := units.RAMInBytes(s.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid memory_limit %q: %w", s.MemoryLimit, err)
	}
	return &n, nil
}

// ResolveEnvironment builds the container environment: entries from env_file
// (sorted by key) followed by the environment list. A bare KEY takes its value
// from lookup and is skipped when unset. Later entries override earlier ones in
// place.
func (s Sandbox) ResolveEnvironment(lookup func(string) (string, bool)) ([]docker.EnvVar, error) {
	var env []docker.EnvVar
	index := make(map[string]int)
	set := func(key, value string) {
		if i, ok := index[key]; ok {
			env[i].Value = value
			return
		}
		index[key] = len(env)
		env = append(env, docker.EnvVar{Key: key, Value: value})
	}

	if s.EnvFile != "" {
		vars, err := godotenv.Read(s.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("reading env_file %s: %w", s.EnvFile, err)
		}
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			set(k, vars[k])
		}
	}

	for _, entry := range s.Environment {
		key, value, hasValue := strings.Cut(entry, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid environment entry %q", entry)
		}
		if !hasValue {
			v, ok := lookup(key)
			if !ok {
				continue
			}
			value = v
		}
		set(key, value)
	}
	return env, nil
}

// ParseVolumes parses the configured bind mounts. A leading "~/" in the host
// path is expanded against home.
func (s Sandbox) ParseVolumes(home string) ([]docker.Volume, error) {
	volumes := make([]docker.Volume, 0, len(s.Volumes))
	for _, entry := range s.Volumes {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid volume %q (want host:container[:mode])", entry)
		}
		host := parts[0]
		if strings.HasPrefix(host, "~/") {
			host = filepath.Join(home, host[2:])
		}
		v := docker.Volume{HostPath: host, ContainerPath: parts[1]}
		if len(parts) == 3 {
			v.Mode = parts[2]
		}
		volumes = append(volumes, v)
	}
	return volumes, nil
}

// ParseNamedVolumes parses the configured runtime-managed volumes.
func (s Sandbox) ParseNamedVolumes() ([]docker.NamedVolume, error) {
	volumes := make([]docker.NamedVolume, 0, len(s.NamedVolumes))
	for _, entry := range s.NamedVolumes {
		name, target, ok := strings.Cut(entry, ":")
		if !ok || name == "" || target == "" {
			return nil, fmt.Errorf("invalid named volume %q (want name:container)", entry)
		}
		volumes = append(volumes, docker.NamedVolume{Name: name, ContainerPath: target})
	}
	return volumes, nil
}

// NewRuntime builds the configured container runtime. host is the daemon
// address used by the api runtime; callers resolve it from the config, the
// environment or the docker context.
func (s Sandbox) NewRuntime(host string) (docker.Runtime, error) {
	switch s.Runtime {
	case "", RuntimeCLI:
		return docker.NewCLIRuntime(s.Binary), nil
	case RuntimeAPI:
		rt, err := docker.NewAPIRuntime(host)
		if err != nil {
			return nil, err
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unsupported sandbox runtime: %s", s.Runtime)
	}
}
