package docker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zpdzap/aoe/internal/docker"
)

// These tests talk to a real daemon and pull alpine:latest. They are skipped
// in -short mode and when no daemon is reachable.

func runtimes(t *testing.T) map[string]docker.Runtime {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping docker integration test in short mode")
	}

	ctx := context.Background()
	cli := docker.NewCLIRuntime("")
	if !cli.IsAvailable() || !cli.IsDaemonRunning(ctx) {
		t.Skip("docker not available")
	}

	api, err := docker.NewAPIRuntime("")
	require.NoError(t, err)
	t.Cleanup(func() { api.Close() })

	return map[string]docker.Runtime{"cli": cli, "api": api}
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1e6)
}

func TestDockerLifecycle(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sessionID := uniqueID("t")
			c := docker.NewContainer(rt, sessionID, "alpine:latest")
			t.Cleanup(func() { _ = c.Remove(context.Background(), true) })

			exists, err := c.Exists(ctx)
			require.NoError(t, err)
			require.False(t, exists)

			id, err := c.Create(ctx, &docker.ContainerConfig{WorkingDir: "/workspace"})
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			info, err := c.Inspect(ctx)
			require.NoError(t, err)
			assert.Equal(t, id, info.ID)
			assert.Equal(t, sessionID, info.Session())
			assert.True(t, info.Running)

			running, err := c.IsRunning(ctx)
			require.NoError(t, err)
			assert.True(t, running)

			require.NoError(t, c.Stop(ctx))
			exists, err = c.Exists(ctx)
			require.NoError(t, err)
			assert.True(t, exists)
			running, err = c.IsRunning(ctx)
			require.NoError(t, err)
			assert.False(t, running)

			require.NoError(t, c.Remove(ctx, false))
			exists, err = c.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestDockerForceRemove(t *testing.T) {
	for name, rt := range runtimes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := docker.NewContainer(rt, uniqueID("f"), "alpine:latest")
			t.Cleanup(func() { _ = c.Remove(context.Background(), true) })

			_, err := c.Create(ctx, &docker.ContainerConfig{WorkingDir: "/workspace"})
			require.NoError(t, err)

			err = c.Remove(ctx, false)
			assert.True(t, docker.IsConflict(err), "got %v", err)

			require.NoError(t, c.Remove(ctx, true))
			exists, err := c.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}
