package sandbox

import (
	"github.com/zpdzap/aoe/internal/config"
	"github.com/zpdzap/aoe/internal/docker"
)

// Defaults are the container settings every sandboxed session starts from.
type Defaults struct {
	Image        string
	Volumes      []docker.Volume
	NamedVolumes []docker.NamedVolume
	Environment  []docker.EnvVar
	CPULimit     *float64
	MemoryLimit  *int64
	YoloMode     bool
	// CacheVolumes mounts per-language package caches detected in the project.
	CacheVolumes bool
}

// DefaultsFromConfig resolves the sandbox section of the config. home expands
// "~/" in volume paths and lookup supplies pass-through environment values.
func DefaultsFromConfig(cfg config.Sandbox, home string, lookup func(string) (string, bool)) (Defaults, error) {
	volumes, err := cfg.ParseVolumes(home)
	if err != nil {
		return Defaults{}, err
	}
	named, err := cfg.ParseNamedVolumes()
	if err != nil {
		return Defaults{}, err
	}
	env, err := cfg.ResolveEnvironment(lookup)
	if err != nil {
		return Defaults{}, err
	}
	mem, err := cfg.MemoryBytes()
	if err != nil {
		return Defaults{}, err
	}
	image := cfg.Image
	if image == "" {
		image = config.DefaultImage
	}
	return Defaults{
		Image:        image,
		Volumes:      volumes,
		NamedVolumes: named,
		Environment:  env,
		CPULimit:     cfg.CPU(),
		MemoryLimit:  mem,
		YoloMode:     cfg.YoloMode,
		CacheVolumes: cfg.CacheVolumes,
	}, nil
}
