// Package titlecache keeps the raw-title to short-title mapping that is shared
// by every run. Entries are append-only and flushed in full after each insert.
package titlecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Shortener produces a short title for a raw post title.
type Shortener interface {
	ShortenTitle(ctx context.Context, title string) (string, error)
}

// Store persists the whole mapping.
type Store interface {
	Load() (map[string]string, error)
	Save(entries map[string]string) error
}

// Cache is the title-shortening cache. It is loaded once at construction and
// saved synchronously on every mutation.
type Cache struct {
	store     Store
	shortener Shortener
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]string
}

// New loads the persisted entries. A missing file starts an empty cache.
func New(store Store, shortener Shortener, logger *slog.Logger) (*Cache, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load title cache: %w", err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	if logger != nil {
		logger.Info("title cache loaded", "entries", len(entries))
	}
	return &Cache{store: store, shortener: shortener, logger: logger, entries: entries}, nil
}

// Lookup returns the cached short title without calling the shortener.
func (c *Cache) Lookup(title string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[title]
	return v, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Shorten returns the cached short title or asks the shortener and persists
// the result. Shortener errors degrade to the original title, which is not
// cached so a later run can retry.
func (c *Cache) Shorten(ctx context.Context, title string) (string, error) {
	if v, ok := c.Lookup(title); ok {
		return v, nil
	}

	short, err := c.shortener.ShortenTitle(ctx, title)
	short = strings.TrimSpace(short)
	if err != nil || short == "" {
		if c.logger != nil {
			c.logger.Warn("title shortening failed, using original", "title", title, "error", err)
		}
		return title, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[title] = short
	if err := c.store.Save(c.entries); err != nil {
		return short, fmt.Errorf("save title cache: %w", err)
	}
	return short, nil
}

// JSONFileStore keeps the mapping as an indented JSON object.
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]string{}, nil
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(s.path), err)
	}
	return entries, nil
}

// Save rewrites the file in full through a temp file and rename.
func (s *JSONFileStore) Save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".title_cache-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
