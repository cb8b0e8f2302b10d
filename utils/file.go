package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureLogDir creates the directory the record files are written to and
// returns its absolute path.
func EnsureLogDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve log directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return abs, nil
}
