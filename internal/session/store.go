package session

import (
	"fmt"
	"path/filepath"
)

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "default"

// Store persists the full list of sessions of one profile.
type Store interface {
	Load() ([]*Instance, error)
	Save(instances []*Instance) error
	Close() error
}

// StoreConfig locates a profile's session store. It is passed in explicitly;
// stores never consult the process environment.
type StoreConfig struct {
	Dir     string // application home, e.g. ~/.agent-of-empires
	Profile string
	Driver  string // json (default), sqlite or postgres
	DSN     string // postgres DSN, or a sqlite path overriding the default
}

// ProfileDir is the directory holding the profile's data.
func (c StoreConfig) ProfileDir() string {
	profile := c.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	return filepath.Join(c.Dir, "profiles", profile)
}

// Open returns the store selected by cfg.Driver.
func Open(cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "json":
		return NewFileStore(cfg), nil
	case "sqlite", "postgres":
		return NewSQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// Put saves inst, replacing the stored instance with the same id.
func Put(s Store, inst *Instance) error {
	instances, err := s.Load()
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range instances {
		if existing.ID == inst.ID {
			instances[i] = inst
			replaced = true
			break
		}
	}
	if !replaced {
		instances = append(instances, inst)
	}
	return s.Save(instances)
}

// Delete removes the instance with the given id. Missing ids are not an error.
func Delete(s Store, id string) error {
	instances, err := s.Load()
	if err != nil {
		return err
	}
	kept := instances[:0]
	for _, inst := range instances {
		if inst.ID != id {
			kept = append(kept, inst)
		}
	}
	return s.Save(kept)
}
