package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_LayerPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conn.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host":"file-host","port":5432}`), 0o600))

	t.Setenv("TESTDB_HOST", "env-host")
	t.Setenv("TESTDB_USER", "env-user")

	merged, err := Load(
		map[string]interface{}{"host": "config-host", "database": "config-db"},
		path,
		"testdb",
		nil,
		map[string]interface{}{"host": "default-host", "port": 1},
		map[string]interface{}{"database": "override-db"},
	)
	require.NoError(t, err)

	// config layer beats env and file for "host".
	assert.Equal(t, "config-host", merged["host"])
	// overrides layer beats config for "database".
	assert.Equal(t, "override-db", merged["database"])
	// file layer beats default for "port", nothing above it touches "port".
	assert.Equal(t, float64(5432), merged["port"])
	// env layer fills in a key neither file, config, nor overrides set.
	assert.Equal(t, "env-user", merged["user"])
}

func TestLoad_RequiredKeys(t *testing.T) {
	_, err := Load(map[string]interface{}{"host": "x"}, "", "", []string{"host", "protocol"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol")
	assert.NotContains(t, err.Error(), "host")
}

func TestLoad_RequiredKeysSatisfied(t *testing.T) {
	merged, err := Load(map[string]interface{}{"host": "x", "protocol": "mysql"}, "", "", []string{"host", "protocol"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "mysql", merged["protocol"])
}

func TestLoad_FileFormats(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"k":"v"}`), 0o600))
	merged, err := Load(nil, jsonPath, "", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "v", merged["k"])

	yamlPath := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("k: v\n"), 0o600))
	merged, err = Load(nil, yamlPath, "", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "v", merged["k"])

	badPath := filepath.Join(dir, "c.toml")
	require.NoError(t, os.WriteFile(badPath, []byte("k = 'v'"), 0o600))
	_, err = Load(nil, badPath, "", nil, nil, nil)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(nil, "/nonexistent/path/conn.json", "", nil, nil, nil)
	require.Error(t, err)
}

func TestLoad_NoEnvPrefixIgnoresEnvironment(t *testing.T) {
	t.Setenv("HOST", "should-not-appear")
	merged, err := Load(nil, "", "", nil, nil, nil)
	require.NoError(t, err)
	_, ok := merged["host"]
	assert.False(t, ok)
}
