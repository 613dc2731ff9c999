package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"moe-bot/internal/settings"

	"go.uber.org/zap"
)

// Store owns the guild settings document. Every mutation goes through Update so
// that read-modify-write sequences from event handlers and the sweeper never
// interleave.
type Store struct {
	mu     sync.Mutex
	path   string
	data   settings.Collection
	saves  uint64
	logger *zap.Logger
}

// Open loads the settings document at path, creating an empty one when it does
// not exist. The loaded collection is upgraded once and written back if the
// upgrade changed anything.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	data, created, err := load(path)
	if err != nil {
		return nil, err
	}
	s.data = data
	if created {
		logger.Info("settings file created", zap.String("path", path))
	}
	if created || data.Upgrade() {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func load(path string) (settings.Collection, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, false, fmt.Errorf("create settings dir: %w", err)
		}
		return settings.Collection{}, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read settings: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return settings.Collection{}, false, nil
	}
	var data settings.Collection
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if data == nil {
		data = settings.Collection{}
	}
	return data, false, nil
}

func (s *Store) Path() string { return s.path }

// Update runs fn under the store lock and saves once if fn reports a change.
func (s *Store) Update(fn func(settings.Collection) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(s.data) {
		return nil
	}
	return s.persist()
}

// View runs fn under the store lock. fn must not keep references to the
// collection after it returns.
func (s *Store) View(fn func(settings.Collection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Guild returns a copy of one guild's settings.
func (s *Store) Guild(guildID string) (*settings.Guild, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guild, ok := s.data[guildID]
	if !ok {
		return nil, false
	}
	return guild.Clone(), true
}

func (s *Store) GuildIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids
}

// Resolve looks up the role bound to a reaction.
func (s *Store) Resolve(guildID, channelID, messageID, emoji string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Resolve(guildID, channelID, messageID, emoji)
}

// Targets lists every bound reaction-role message.
func (s *Store) Targets() []settings.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Targets()
}

// Save writes the current document.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// Saves reports how many times the document has been written.
func (s *Store) Saves() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) persist() error {
	if err := writeJSONAtomic(s.path, s.data); err != nil {
		s.logger.Error("settings save failed", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.saves++
	return nil
}

// writeJSONAtomic writes value to a temp file next to path and renames it into
// place.
func writeJSONAtomic(path string, value any) error {
	tempPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(tempPath)
		}
	}()

	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		f = nil
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	f = nil

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
