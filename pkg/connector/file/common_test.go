package file

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadAtomic_WritesFileAndReturnsSize(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub", "report.csv")

	n, err := downloadAtomic(target, bytes.NewReader([]byte("a,b,c\n1,2,3\n")))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(data))
}

func TestDownloadAtomic_NeverLeavesPartialFileOnReadError(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.csv")

	failing := io.MultiReader(bytes.NewReader([]byte("partial")), errReader{})
	_, err := downloadAtomic(target, failing)
	require.Error(t, err)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr), "a failed download must not leave a file at the destination path")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the temp .part- file must be cleaned up on failure")
}

func TestDownloadAtomic_CreatesMissingDirectories(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c", "file.bin")

	_, err := downloadAtomic(target, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	_, err = os.Stat(target)
	require.NoError(t, err)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

func TestRequireString_MissingKeyFails(t *testing.T) {
	_, err := requireString(map[string]interface{}{}, "host")
	require.Error(t, err)
}

func TestOptionalInt_CoercesFloat64FromJSON(t *testing.T) {
	assert.Equal(t, 7, optionalInt(map[string]interface{}{"port": float64(7)}, "port", 0))
	assert.Equal(t, 99, optionalInt(map[string]interface{}{}, "port", 99))
}

func TestOptionalBool_DefaultsWhenAbsent(t *testing.T) {
	assert.True(t, optionalBool(map[string]interface{}{}, "passive", true))
	assert.False(t, optionalBool(map[string]interface{}{"passive": false}, "passive", true))
}
