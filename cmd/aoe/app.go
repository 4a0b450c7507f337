package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zpdzap/aoe/internal/config"
	"github.com/zpdzap/aoe/internal/docker"
	"github.com/zpdzap/aoe/internal/logging"
	"github.com/zpdzap/aoe/internal/sandbox"
	"github.com/zpdzap/aoe/internal/session"
)

// app is everything a command needs, built once from config and environment.
type app struct {
	home     string
	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	store    session.Store
	rt       docker.Runtime
	mgr      *sandbox.Manager
}

func newApp(profile string) (*app, error) {
	home, err := config.HomeDir(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(home)
	if err != nil {
		return nil, err
	}
	if profile == "" {
		profile, _ = os.LookupEnv("AOE_PROFILE")
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.StoreConfig(home, profile))
	if err != nil {
		closeLog()
		return nil, err
	}

	rt, err := cfg.Sandbox.NewRuntime(dockerHost(cfg.Sandbox, os.LookupEnv, docker.DetectHost))
	if err != nil {
		store.Close()
		closeLog()
		return nil, err
	}

	userHome, _ := os.UserHomeDir()
	defaults, err := sandbox.DefaultsFromConfig(cfg.Sandbox, userHome, os.LookupEnv)
	if err != nil {
		store.Close()
		closeLog()
		return nil, fmt.Errorf("invalid sandbox config: %w", err)
	}

	return &app{
		home:     home,
		cfg:      cfg,
		log:      log,
		closeLog: closeLog,
		store:    store,
		rt:       rt,
		mgr:      sandbox.NewManager(rt, store, defaults, log),
	}, nil
}

func (a *app) Close() {
	if c, ok := a.rt.(interface{ Close() error }); ok {
		c.Close()
	}
	a.store.Close()
	a.log.Sync()
	a.closeLog()
}

// dockerHost picks the daemon address for the api runtime: the configured
// host, then $DOCKER_HOST, then the current docker context.
func dockerHost(cfg config.Sandbox, lookup func(string) (string, bool), detect func() string) string {
	if cfg.Runtime != config.RuntimeAPI {
		return ""
	}
	if cfg.DockerHost != "" {
		return cfg.DockerHost
	}
	if host, ok := lookup("DOCKER_HOST"); ok && host != "" {
		return host
	}
	return detect()
}

// find loads the profile's sessions and resolves ref.
func (a *app) find(ref string) (*session.Instance, error) {
	instances, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	inst, ok := session.Find(instances, ref)
	if !ok {
		return nil, fmt.Errorf("no unique session matches %q", ref)
	}
	return inst, nil
}
