package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zpdzap/aoe/internal/config"
	"github.com/zpdzap/aoe/internal/session"
)

func TestDockerHost(t *testing.T) {
	env := func(vals map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := vals[k]
			return v, ok
		}
	}
	detect := func() string { return "unix:///colima.sock" }

	tests := []struct {
		name string
		cfg  config.Sandbox
		env  map[string]string
		want string
	}{
		{"cli runtime ignores host", config.Sandbox{Runtime: config.RuntimeCLI, DockerHost: "tcp://x:2375"}, nil, ""},
		{"configured host wins", config.Sandbox{Runtime: config.RuntimeAPI, DockerHost: "tcp://x:2375"}, map[string]string{"DOCKER_HOST": "tcp://y:2375"}, "tcp://x:2375"},
		{"environment", config.Sandbox{Runtime: config.RuntimeAPI}, map[string]string{"DOCKER_HOST": "tcp://y:2375"}, "tcp://y:2375"},
		{"docker context", config.Sandbox{Runtime: config.RuntimeAPI}, nil, "unix:///colima.sock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dockerHost(tt.cfg, env(tt.env), detect))
		})
	}
}

func TestRenderTable(t *testing.T) {
	host := &session.Instance{ID: "1111222233334444", Title: "api", Tool: "claude", ProjectPath: "/src/api"}
	boxed := &session.Instance{ID: "aaaabbbbccccdddd", Title: "web", Tool: "codex", ProjectPath: "/src/web",
		Sandbox: &session.SandboxInfo{Enabled: true, ContainerName: "aoe-sandbox-aaaabbbb"}}

	out := renderTable([]*session.Instance{host, boxed})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], "11112222")
	assert.NotContains(t, lines[1], "1111222233334444")
	assert.Contains(t, lines[1], "host")
	assert.Contains(t, lines[2], "sandbox (creating)")
}

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"init", "add", "list", "rm", "attach", "sandbox"} {
		assert.Contains(t, names, want)
	}
}
