package cache

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// SessionCache caches per-goroutine handles (e.g. an HTTP client session)
// keyed by (connectionType, normalized config, goroutine id). It is safe
// for concurrent use.
type SessionCache struct {
	mu      sync.Mutex
	entries map[string]Closer
}

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{entries: make(map[string]Closer)}
}

var globalSessionCache = NewSessionCache()

// GetOrCreate returns the cached handle for the current goroutine and
// (connectionType, config), or builds one via factory. When reuse is false,
// lookup and storage are bypassed.
func (c *SessionCache) GetOrCreate(connectionType string, config map[string]interface{}, reuse bool, factory func() (Closer, error)) (Closer, error) {
	if !reuse {
		return factory()
	}

	key := NormalizedKey(connectionType, config) + "::" + strconv.FormatUint(goroutineID(), 10)

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

// CloseAll closes every cached session handle and empties the cache.
func (c *SessionCache) CloseAll() {
	c.mu.Lock()
	handles := make([]Closer, 0, len(c.entries))
	for _, h := range c.entries {
		handles = append(handles, h)
	}
	c.entries = make(map[string]Closer)
	c.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			logger.Get().Warn("failed to close cached session", zap.Error(err))
		}
	}
}

// GetOrCreateSession delegates to the global session cache.
func GetOrCreateSession(connectionType string, config map[string]interface{}, reuse bool, factory func() (Closer, error)) (Closer, error) {
	return globalSessionCache.GetOrCreate(connectionType, config, reuse, factory)
}

// CloseAllSessions closes and clears the global session cache.
func CloseAllSessions() {
	globalSessionCache.CloseAll()
}

// goroutineID parses the calling goroutine's numeric id out of
// runtime.Stack. No official API exposes this; it is the standard idiom
// reached for when goroutine-scoped state is unavoidable.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	// Output starts with "goroutine <id> [...".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]

	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
