// Package store persists the client data source configuration as YAML so it
// survives restarts.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/txn2/budget-data-gateway/pkg/dataservice"
)

const (
	dirPerms  = 0o700
	filePerms = 0o600
)

// DefaultPath returns the per-user datasource file,
// e.g. ~/.config/budget-gateway/datasource.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "budget-gateway", "datasource.yaml"), nil
}

// FileStore keeps the configuration in a YAML file. Credentials are written
// as given, so the file is created owner-readable only.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load returns the stored configuration, or nil when none was saved.
func (s *FileStore) Load() (*dataservice.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading datasource file: %w", err)
	}

	var cfg dataservice.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing datasource file: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg, replacing the file atomically.
func (s *FileStore) Save(cfg dataservice.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding datasource config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerms); err != nil {
		return fmt.Errorf("creating datasource dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".datasource-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing datasource file: %w", err)
	}
	if err := tmp.Chmod(filePerms); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting datasource file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing datasource file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing datasource file: %w", err)
	}
	return nil
}

// Clear removes the stored configuration.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing datasource file: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ dataservice.Store = (*FileStore)(nil)
