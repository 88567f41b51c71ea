package streamconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
)

// Store loads and persists the configuration file and serves the current snapshot.
type Store struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	current StreamConfig
}

// NewStore creates a store for path holding the defaults until Load is called.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		logger:  logger,
		current: Defaults(),
	}
}

// Path returns the configuration file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored configuration merged onto the defaults, installs it
// as the current snapshot and returns it. A missing, unreadable, malformed
// or invalid file yields the defaults; Load never fails.
func (s *Store) Load() StreamConfig {
	cfg, err := Parse(s.path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("No stored stream config, using defaults", "path", s.path)
		cfg = Defaults()
	default:
		s.logger.Warn("Stored stream config unusable, using defaults", "path", s.path, "error", err)
		cfg = Defaults()
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return cfg
}

// Current returns the current snapshot.
func (s *Store) Current() StreamConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Replace installs cfg as the current snapshot without writing it. Used when
// the file was changed by someone else.
func (s *Store) Replace(cfg StreamConfig) {
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	s.logger.Info("Stream config reloaded", "endpoint", cfg.Redacted(), "resolution", cfg.Resolution.String())
}

// Save merges p onto the current snapshot, validates the result and writes it
// atomically. On any error neither the file nor the snapshot changes.
func (s *Store) Save(p Partial) (StreamConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := Merge(s.current, p)
	if err := Validate(merged); err != nil {
		return s.current, err
	}

	if err := write(s.path, merged); err != nil {
		s.logger.Error("Failed to save stream config", "path", s.path, "error", err)
		return s.current, err
	}

	s.current = merged
	s.logger.Info("Stream config saved", "path", s.path)
	return merged, nil
}

// Parse reads path, merges its content onto the defaults and validates the
// result. Unlike Load it reports missing, malformed or invalid files.
func Parse(path string) (StreamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StreamConfig{}, err
	}

	var p Partial
	if err := json.Unmarshal(data, &p); err != nil {
		return StreamConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg := Merge(Defaults(), p)
	if err := Validate(cfg); err != nil {
		return StreamConfig{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

func write(path string, cfg StreamConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
