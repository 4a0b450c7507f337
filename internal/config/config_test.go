package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpdzap/aoe/internal/docker"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Profile = "work"
	cfg.Storage = Storage{Driver: "sqlite"}
	cfg.Sandbox.CPULimit = 2
	cfg.Sandbox.MemoryLimit = "4g"
	cfg.Sandbox.Volumes = []string{"~/.gitconfig:/root/.gitconfig:ro"}

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Profile != "work" {
		t.Errorf("Profile = %q, want %q", loaded.Profile, "work")
	}
	if loaded.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want %q", loaded.Storage.Driver, "sqlite")
	}
	if loaded.Sandbox.Image != DefaultImage {
		t.Errorf("Sandbox.Image = %q, want %q", loaded.Sandbox.Image, DefaultImage)
	}
	if len(loaded.Sandbox.Volumes) != 1 {
		t.Errorf("Sandbox.Volumes = %v, want one entry", loaded.Sandbox.Volumes)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: \"1\"\nsandbox:\n  yolo_mode: true\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Sandbox.YoloMode)
	assert.Equal(t, DefaultImage, cfg.Sandbox.Image)
	assert.Equal(t, RuntimeCLI, cfg.Sandbox.Runtime)
	assert.Equal(t, "default", cfg.Profile)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("Exists should be false before init")
	}

	if err := Save(dir, Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !Exists(dir) {
		t.Error("Exists should be true after save")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestHomeDir(t *testing.T) {
	dir, err := HomeDir(func(key string) (string, bool) {
		if key == "AOE_HOME" {
			return "/tmp/aoe-home", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/aoe-home", dir)

	dir, err = HomeDir(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	assert.Equal(t, Dir, filepath.Base(dir))
}

func TestStoreConfig(t *testing.T) {
	cfg := Default()
	cfg.Storage = Storage{Driver: "postgres", DSN: "postgres://localhost/aoe"}

	sc := cfg.StoreConfig("/home/u/.agent-of-empires", "")
	assert.Equal(t, "default", sc.Profile)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "postgres://localhost/aoe", sc.DSN)

	sc = cfg.StoreConfig("/home/u/.agent-of-empires", "work")
	assert.Equal(t, "/home/u/.agent-of-empires/profiles/work", sc.ProfileDir())
}

func TestMemoryBytes(t *testing.T) {
	tests := []struct {
		limit   string
		want    int64
		wantNil bool
		wantErr bool
	}{
		{limit: "", wantNil: true},
		{limit: "512m", want: 512 * 1024 * 1024},
		{limit: "4g", want: 4 * 1024 * 1024 * 1024},
		{limit: "lots", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.limit, func(t *testing.T) {
			got, err := Sandbox{MemoryLimit: tt.limit}.MemoryBytes()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestCPU(t *testing.T) {
	assert.Nil(t, Sandbox{}.CPU())
	cpu := Sandbox{CPULimit: 1.5}.CPU()
	require.NotNil(t, cpu)
	assert.Equal(t, 1.5, *cpu)
}

func TestResolveEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ZED=last\nAPI_KEY=from-file\n"), 0o600))

	lookup := func(key string) (string, bool) {
		switch key {
		case "TERM":
			return "xterm-256color", true
		case "EMPTY":
			return "", true
		}
		return "", false
	}

	s := Sandbox{
		EnvFile:     envFile,
		Environment: []string{"TERM", "UNSET", "EMPTY", "API_KEY=override", "MODE=a=b"},
	}
	env, err := s.ResolveEnvironment(lookup)
	require.NoError(t, err)
	assert.Equal(t, []docker.EnvVar{
		{Key: "API_KEY", Value: "override"},
		{Key: "ZED", Value: "last"},
		{Key: "TERM", Value: "xterm-256color"},
		{Key: "EMPTY", Value: ""},
		{Key: "MODE", Value: "a=b"},
	}, env)
}

func TestResolveEnvironmentErrors(t *testing.T) {
	none := func(string) (string, bool) { return "", false }

	_, err := Sandbox{Environment: []string{"=value"}}.ResolveEnvironment(none)
	assert.Error(t, err)

	_, err = Sandbox{EnvFile: filepath.Join(t.TempDir(), "missing.env")}.ResolveEnvironment(none)
	assert.Error(t, err)
}

func TestParseVolumes(t *testing.T) {
	s := Sandbox{Volumes: []string{
		"~/.gitconfig:/root/.gitconfig:ro",
		"/data:/data",
	}}
	vols, err := s.ParseVolumes("/home/u")
	require.NoError(t, err)
	assert.Equal(t, []docker.Volume{
		{HostPath: "/home/u/.gitconfig", ContainerPath: "/root/.gitconfig", Mode: "ro"},
		{HostPath: "/data", ContainerPath: "/data"},
	}, vols)

	for _, bad := range []string{"/data", ":/data", "/a:/b:ro:x", "/a:"} {
		_, err := Sandbox{Volumes: []string{bad}}.ParseVolumes("/home/u")
		assert.Error(t, err, bad)
	}
}

func TestParseNamedVolumes(t *testing.T) {
	vols, err := Sandbox{NamedVolumes: []string{"cache:/root/.cache"}}.ParseNamedVolumes()
	require.NoError(t, err)
	assert.Equal(t, []docker.NamedVolume{{Name: "cache", ContainerPath: "/root/.cache"}}, vols)

	_, err = Sandbox{NamedVolumes: []string{"cache"}}.ParseNamedVolumes()
	assert.Error(t, err)
}

func TestNewRuntime(t *testing.T) {
	rt, err := Sandbox{}.NewRuntime("")
	require.NoError(t, err)
	assert.IsType(t, &docker.CLIRuntime{}, rt)

	_, err = Sandbox{Runtime: "podman-machine"}.NewRuntime("")
	assert.Error(t, err)
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		wantLang   string
		wantCaches int
	}{
		{"go project", "go.mod", "go", 2},
		{"node project", "package.json", "node", 1},
		{"python project", "requirements.txt", "python", 1},
		{"rust project", "Cargo.toml", "rust", 1},
		{"unknown project", "", "unknown", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				os.WriteFile(filepath.Join(dir, tt.file), []byte(""), 0o644)
			}
			d := Detect(dir)
			if d.Language != tt.wantLang {
				t.Errorf("Language = %q, want %q", d.Language, tt.wantLang)
			}
			if len(d.CacheVolumes) != tt.wantCaches {
				t.Errorf("CacheVolumes = %v, want %d", d.CacheVolumes, tt.wantCaches)
			}
		})
	}
}
