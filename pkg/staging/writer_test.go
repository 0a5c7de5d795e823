package staging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_NilOrFailedResultYieldsNoPaths(t *testing.T) {
	lakeRoot := t.TempDir()

	paths, err := Write(nil, lakeRoot, "orders")
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = Write(&model.IngestionResult{Protocol: "mysql", Success: false, Items: []model.IngestedItem{
		{Kind: model.KindRow, Row: map[string]interface{}{"id": 1}},
	}}, lakeRoot, "orders")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWrite_EmptyItemsYieldsNoPaths(t *testing.T) {
	lakeRoot := t.TempDir()
	paths, err := Write(&model.IngestionResult{Protocol: "mysql", Success: true}, lakeRoot, "orders")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWrite_PartitionPathShape(t *testing.T) {
	lakeRoot := t.TempDir()
	result := &model.IngestionResult{
		Protocol: "mysql",
		Success:  true,
		Items: []model.IngestedItem{
			{Kind: model.KindRows, Rows: []map[string]interface{}{
				{"id": 1, "name": "alice"},
				{"id": 2, "name": "bob"},
			}},
		},
		FetchedAt: time.Now().UTC(),
	}

	paths, err := Write(result, lakeRoot, "orders")
	require.NoError(t, err)
	require.Len(t, paths, 1)

	path := paths[0]
	rel, err := filepath.Rel(lakeRoot, path)
	require.NoError(t, err)
	parts := splitPath(rel)
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Equal(t, "mysql", parts[0])
	assert.Equal(t, "orders", parts[1])
	assert.Len(t, parts[2], len("2006-01-02"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Contains(t, filepath.Base(path), "orders_")
}

func TestWrite_PreStagedPassesThroughUnchanged(t *testing.T) {
	lakeRoot := t.TempDir()
	preStaged := filepath.Join(lakeRoot, "already-there.parquet")
	require.NoError(t, os.WriteFile(preStaged, []byte("not really parquet"), 0o600))

	result := &model.IngestionResult{
		Protocol: "ftp",
		Success:  true,
		Items: []model.IngestedItem{
			{Kind: model.KindPreStaged, PreStagedPath: preStaged},
		},
	}

	paths, err := Write(result, lakeRoot, "drops")
	require.NoError(t, err)
	assert.Equal(t, []string{preStaged}, paths)
}

func TestWrite_ScalarBecomesSingleRowWithPayloadField(t *testing.T) {
	lakeRoot := t.TempDir()
	result := &model.IngestionResult{
		Protocol: "http",
		Success:  true,
		Items: []model.IngestedItem{
			{Kind: model.KindScalar, Scalar: int64(42)},
		},
	}

	paths, err := Write(result, lakeRoot, "counts")
	require.NoError(t, err)
	require.Len(t, paths, 1)

	info, err := os.Stat(paths[0])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPayloadToRows_RowIsCloned(t *testing.T) {
	original := map[string]interface{}{"id": 1}
	rows := payloadToRows(model.IngestedItem{Kind: model.KindRow, Row: original})
	require.Len(t, rows, 1)

	rows[0]["id"] = 999
	assert.Equal(t, 1, original["id"], "mutating the returned row must not mutate the source row")
}

func TestSafeName_SanitizesPathSeparatorsAndDots(t *testing.T) {
	assert.Equal(t, "a_b_c_tsv", safeName("a/b.c.tsv"))
}

func splitPath(p string) []string {
	var parts []string
	for p != "." && p != "/" && p != "" {
		dir, file := filepath.Split(p)
		parts = append([]string{file}, parts...)
		p = filepath.Clean(dir)
		if dir == "" {
			break
		}
	}
	return parts
}
