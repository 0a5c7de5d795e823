package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestNormalizedKey_SameConfigSameKey(t *testing.T) {
	a := NormalizedKey("mysql", map[string]interface{}{"host": "db", "port": 3306})
	b := NormalizedKey("mysql", map[string]interface{}{"port": 3306, "host": "db"})
	assert.Equal(t, a, b, "key must not depend on map iteration order")
}

func TestNormalizedKey_DifferentConfigDifferentKey(t *testing.T) {
	a := NormalizedKey("mysql", map[string]interface{}{"host": "db1"})
	b := NormalizedKey("mysql", map[string]interface{}{"host": "db2"})
	assert.NotEqual(t, a, b)
}

func TestNormalizedKey_DifferentConnectionTypeDifferentKey(t *testing.T) {
	a := NormalizedKey("mysql", map[string]interface{}{"host": "db"})
	b := NormalizedKey("postgres", map[string]interface{}{"host": "db"})
	assert.NotEqual(t, a, b)
}

func TestEngineCache_GetOrCreateReusesHandle(t *testing.T) {
	c := NewEngineCache()
	calls := 0
	factory := func() (Closer, error) {
		calls++
		return &fakeCloser{}, nil
	}

	cfg := map[string]interface{}{"host": "db"}
	h1, err := c.GetOrCreate("mysql", cfg, true, factory)
	require.NoError(t, err)
	h2, err := c.GetOrCreate("mysql", cfg, true, factory)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, calls)
}

func TestEngineCache_DistinctConfigGetsDistinctHandle(t *testing.T) {
	c := NewEngineCache()
	factory := func() (Closer, error) { return &fakeCloser{}, nil }

	h1, err := c.GetOrCreate("mysql", map[string]interface{}{"host": "a"}, true, factory)
	require.NoError(t, err)
	h2, err := c.GetOrCreate("mysql", map[string]interface{}{"host": "b"}, true, factory)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
}

func TestEngineCache_ReuseFalseAlwaysBuildsNew(t *testing.T) {
	c := NewEngineCache()
	calls := 0
	factory := func() (Closer, error) {
		calls++
		return &fakeCloser{}, nil
	}

	cfg := map[string]interface{}{"host": "db"}
	_, err := c.GetOrCreate("mysql", cfg, false, factory)
	require.NoError(t, err)
	_, err = c.GetOrCreate("mysql", cfg, false, factory)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestEngineCache_FactoryErrorNotCached(t *testing.T) {
	c := NewEngineCache()
	calls := 0
	factory := func() (Closer, error) {
		calls++
		if calls == 1 {
			return nil, assert.AnError
		}
		return &fakeCloser{}, nil
	}

	cfg := map[string]interface{}{"host": "db"}
	_, err := c.GetOrCreate("mysql", cfg, true, factory)
	require.Error(t, err)

	h, err := c.GetOrCreate("mysql", cfg, true, factory)
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, 2, calls)
}

func TestEngineCache_CloseAllClosesAndClears(t *testing.T) {
	c := NewEngineCache()
	fc := &fakeCloser{}
	_, err := c.GetOrCreate("mysql", map[string]interface{}{"host": "db"}, true, func() (Closer, error) {
		return fc, nil
	})
	require.NoError(t, err)

	c.CloseAll()
	assert.True(t, fc.closed)
	assert.Empty(t, c.entries)
}

func TestSessionCache_DifferentGoroutinesGetDifferentHandles(t *testing.T) {
	c := NewSessionCache()
	cfg := map[string]interface{}{"host": "db"}

	var wg sync.WaitGroup
	handles := make([]Closer, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			h, err := c.GetOrCreate("http", cfg, true, func() (Closer, error) {
				return &fakeCloser{}, nil
			})
			require.NoError(t, err)
			handles[idx] = h
		}(i)
	}
	wg.Wait()

	assert.NotSame(t, handles[0], handles[1])
}

func TestSessionCache_SameGoroutineReuses(t *testing.T) {
	c := NewSessionCache()
	cfg := map[string]interface{}{"host": "db"}
	calls := 0
	factory := func() (Closer, error) {
		calls++
		return &fakeCloser{}, nil
	}

	h1, err := c.GetOrCreate("http", cfg, true, factory)
	require.NoError(t, err)
	h2, err := c.GetOrCreate("http", cfg, true, factory)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, calls)
}
