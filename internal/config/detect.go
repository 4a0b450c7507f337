package config

import (
	"os"
	"path/filepath"

	"github.com/zpdzap/aoe/internal/docker"
)

type Detection struct {
	Language     string
	CacheVolumes []docker.NamedVolume
}

// Detect inspects the project directory and returns its language along with the
// package caches worth keeping in named volumes across sandboxes.
func Detect(projectDir string) Detection {
	checks := []struct {
		file     string
		language string
		caches   []docker.NamedVolume
	}{
		{"go.mod", "go", []docker.NamedVolume{
			{Name: "aoe-cache-go-mod", ContainerPath: "/root/go/pkg/mod"},
			{Name: "aoe-cache-go-build", ContainerPath: "/root/.cache/go-build"},
		}},
		{"package.json", "node", []docker.NamedVolume{
			{Name: "aoe-cache-npm", ContainerPath: "/root/.npm"},
		}},
		{"requirements.txt", "python", []docker.NamedVolume{
			{Name: "aoe-cache-pip", ContainerPath: "/root/.cache/pip"},
		}},
		{"Cargo.toml", "rust", []docker.NamedVolume{
			{Name: "aoe-cache-cargo", ContainerPath: "/root/.cargo/registry"},
		}},
		{"pyproject.toml", "python", []docker.NamedVolume{
			{Name: "aoe-cache-pip", ContainerPath: "/root/.cache/pip"},
		}},
	}

	for _, c := range checks {
		if _, err := os.Stat(filepath.Join(projectDir, c.file)); err == nil {
			return Detection{Language: c.language, CacheVolumes: c.caches}
		}
	}
	return Detection{Language: "unknown"}
}
