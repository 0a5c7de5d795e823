// Package cache provides process-wide handle caches keyed by connection
// identity, so repeated connects against the same logical target reuse one
// underlying handle instead of opening a new one per run.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// Closer is any cached handle that can be torn down.
type Closer interface {
	Close() error
}

// EngineCache caches connection-like handles keyed by (connectionType,
// normalized config). It is safe for concurrent use.
type EngineCache struct {
	mu      sync.Mutex
	entries map[string]Closer
}

// NewEngineCache creates an empty engine cache.
func NewEngineCache() *EngineCache {
	return &EngineCache{entries: make(map[string]Closer)}
}

var globalEngineCache = NewEngineCache()

// GetOrCreate returns the cached handle for (connectionType, config) or
// builds one via factory and stores it. When reuse is false, lookup and
// storage are both bypassed and factory always runs.
func (c *EngineCache) GetOrCreate(connectionType string, config map[string]interface{}, reuse bool, factory func() (Closer, error)) (Closer, error) {
	if !reuse {
		return factory()
	}

	key := NormalizedKey(connectionType, config)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.entries[key]; ok {
		return cached, nil
	}

	handle, err := factory()
	if err != nil {
		return nil, err
	}
	c.entries[key] = handle
	return handle, nil
}

// CloseAll closes every cached handle and empties the cache. Errors from
// individual closes are logged, not propagated, so one stuck handle never
// blocks the others from closing.
func (c *EngineCache) CloseAll() {
	c.mu.Lock()
	handles := make([]Closer, 0, len(c.entries))
	for _, h := range c.entries {
		handles = append(handles, h)
	}
	c.entries = make(map[string]Closer)
	c.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			logger.Get().Warn("failed to close cached engine", zap.Error(err))
		}
	}
}

// GetOrCreateEngine delegates to the global engine cache.
func GetOrCreateEngine(connectionType string, config map[string]interface{}, reuse bool, factory func() (Closer, error)) (Closer, error) {
	return globalEngineCache.GetOrCreate(connectionType, config, reuse, factory)
}

// CloseAllEngines closes and clears the global engine cache.
func CloseAllEngines() {
	globalEngineCache.CloseAll()
}

// NormalizedKey builds a stable cache key from a connection type and its
// config map: sorted "key=value" pairs joined with "|", prefixed by the
// connection type.
func NormalizedKey(connectionType string, config map[string]interface{}) string {
	pairs := make([]string, 0, len(config))
	for k, v := range config {
		pairs = append(pairs, k+"="+toString(v))
	}
	sort.Strings(pairs)
	return connectionType + "::" + strings.Join(pairs, "|")
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
