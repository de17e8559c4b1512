package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store wraps a Config with on-demand reads and persist-on-mutation writes.
// Readers get a copy and tolerate slightly stale values; writers hold the
// lock only around marshal+write, so last writer wins.
type Store struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewStore loads the config at path and returns a Store bound to it. If the
// file does not exist an empty config is used and created on first Save.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return &Store{path: path, cfg: cfg}, nil
}

// NewStoreWith builds a Store around an in-memory config. Saves go to path;
// an empty path disables persistence (used by tests).
func NewStoreWith(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return &Store{path: path, cfg: cfg}
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.cfg
	cp.HiddenUsers = append([]string(nil), s.cfg.HiddenUsers...)
	cp.ScheduledPushes = append([]ScheduledPush(nil), s.cfg.ScheduledPushes...)
	return cp
}

// Update applies fn to the settings and persists the whole file immediately.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	s.cfg.applyDefaults()
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", s.path, err)
	}
	return nil
}

// AddPush appends a scheduled push, replacing any existing push with the
// same ID.
func (s *Store) AddPush(p ScheduledPush) error {
	return s.Update(func(c *Config) {
		for i := range c.ScheduledPushes {
			if c.ScheduledPushes[i].ID == p.ID {
				c.ScheduledPushes[i] = p
				return
			}
		}
		c.ScheduledPushes = append(c.ScheduledPushes, p)
	})
}

// RemovePush deletes the scheduled push with the given ID. Removing an
// unknown ID is a no-op.
func (s *Store) RemovePush(id string) error {
	return s.Update(func(c *Config) {
		kept := c.ScheduledPushes[:0]
		for _, p := range c.ScheduledPushes {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		c.ScheduledPushes = kept
	})
}
