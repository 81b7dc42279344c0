package artifacts

import (
	"context"
	"fmt"
	"log/slog"
)

// Producer writes a complete artifact at dst. It must not leave dst in place
// on error; the cache discards it either way.
type Producer func(ctx context.Context, dst string) error

// CacheObserver receives hit/miss notifications, e.g. for metrics.
type CacheObserver interface {
	CacheHit(kind Kind)
	CacheMiss(kind Kind)
}

// Cache implements skip-if-present generation on top of a FileStore.
type Cache struct {
	store    FileStore
	observer CacheObserver
	logger   *slog.Logger
}

func NewCache(store FileStore, observer CacheObserver, logger *slog.Logger) *Cache {
	return &Cache{store: store, observer: observer, logger: logger}
}

// Store returns the underlying store.
func (c *Cache) Store() FileStore {
	return c.store
}

// GetOrCreate returns the path of key's artifact, invoking produce only when
// the artifact is absent. created reports whether produce ran successfully.
func (c *Cache) GetOrCreate(ctx context.Context, key Key, produce Producer) (path string, created bool, err error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("check artifact %s: %w", key, err)
	}
	if exists {
		c.hit(key)
		return c.store.Path(key), false, nil
	}
	c.miss(key)

	staged, err := c.store.Stage(key)
	if err != nil {
		return "", false, err
	}
	if err := produce(ctx, staged.Path); err != nil {
		staged.Abort()
		return "", false, err
	}
	if err := staged.Commit(); err != nil {
		return "", false, fmt.Errorf("persist artifact %s: %w", key, err)
	}

	if c.logger != nil {
		c.logger.Debug("artifact created", "key", key.String())
	}
	return c.store.Path(key), true, nil
}

// GetOrCreateText is GetOrCreate for small text artifacts.
func (c *Cache) GetOrCreateText(ctx context.Context, key Key, produce func(ctx context.Context) (string, error)) (string, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check artifact %s: %w", key, err)
	}
	if exists {
		data, err := c.store.Read(ctx, key)
		if err != nil {
			return "", fmt.Errorf("read artifact %s: %w", key, err)
		}
		c.hit(key)
		return string(data), nil
	}
	c.miss(key)

	text, err := produce(ctx)
	if err != nil {
		return "", err
	}
	if err := c.store.Write(ctx, key, []byte(text)); err != nil {
		return "", fmt.Errorf("persist artifact %s: %w", key, err)
	}
	return text, nil
}

func (c *Cache) hit(key Key) {
	if c.observer != nil {
		c.observer.CacheHit(key.Kind)
	}
	if c.logger != nil {
		c.logger.Debug("artifact cache hit", "key", key.String())
	}
}

func (c *Cache) miss(key Key) {
	if c.observer != nil {
		c.observer.CacheMiss(key.Kind)
	}
}
