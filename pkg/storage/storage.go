package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver persists finalized call recordings.
type Driver interface {
	Save(name string, data []byte) (string, error)
	Path(name string) string
}

type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	if basePath == "" {
		basePath = "data/recordings"
	}
	return &LocalDriver{basePath: basePath}
}

func (d *LocalDriver) Save(name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("recording name is required")
	}

	if err := os.MkdirAll(d.basePath, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	path := filepath.Join(d.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	return path, nil
}

func (d *LocalDriver) Path(name string) string {
	return filepath.Join(d.basePath, name)
}

func NewDriver(driverType string, localPath string) (Driver, error) {
	switch strings.ToLower(driverType) {
	case "", "local":
		return NewLocalDriver(localPath), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driverType)
	}
}
