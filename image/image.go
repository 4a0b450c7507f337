// Package image bundles the Dockerfile of the sandbox image.
package image

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed Dockerfile
var Dockerfile []byte

// Write saves the Dockerfile into dir and returns its path.
func Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, "Dockerfile")
	if err := os.WriteFile(path, Dockerfile, 0o644); err != nil {
		return "", fmt.Errorf("writing Dockerfile: %w", err)
	}
	return path, nil
}
