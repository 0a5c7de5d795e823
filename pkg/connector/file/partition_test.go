package file

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionDir_Shape(t *testing.T) {
	lakeRoot := t.TempDir()

	dir := partitionDir(lakeRoot, "ftp", "orders")

	rel, err := filepath.Rel(lakeRoot, dir)
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 3)
	assert.Equal(t, "ftp", parts[0])
	assert.Equal(t, "orders", parts[1])
	assert.Len(t, parts[2], len("2006-01-02"))
}

func TestPartitionDir_SanitizesSourceName(t *testing.T) {
	lakeRoot := t.TempDir()

	dir := partitionDir(lakeRoot, "webdav", "partner/feed.v2")

	assert.NotContains(t, filepath.Base(filepath.Dir(dir)), "/")
	assert.NotContains(t, filepath.Base(filepath.Dir(dir)), ".")
}
