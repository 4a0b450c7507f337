package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	sessionsFile = "sessions.json"
	backupSuffix = ".bak"
)

// FileStore keeps a profile's sessions in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to <profile dir>/sessions.json.
func NewFileStore(cfg StoreConfig) *FileStore {
	return &FileStore{path: filepath.Join(cfg.ProfileDir(), sessionsFile)}
}

// Path returns the sessions file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() ([]*Instance, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Instance{}, nil
		}
		return nil, fmt.Errorf("reading sessions: %w", err)
	}

	var instances []*Instance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("parsing sessions: %w", err)
	}
	if instances == nil {
		instances = []*Instance{}
	}
	return instances, nil
}

// Save writes instances atomically and keeps the previous file as a backup.
func (s *FileStore) Save(instances []*Instance) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}
	if instances == nil {
		instances = []*Instance{}
	}
	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sessions: %w", err)
	}

	if prev, err := os.ReadFile(s.path); err == nil {
		if err := os.WriteFile(s.path+backupSuffix, prev, 0o644); err != nil {
			return fmt.Errorf("writing sessions backup: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, sessionsFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp sessions file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing sessions: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("writing sessions: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Close() error { return nil }
