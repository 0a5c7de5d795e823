package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementalQuery_BuildsDeterministicWatermarkQuery(t *testing.T) {
	got := IncrementalQuery("orders", "updated_at", "$1", "$2")
	assert.Equal(t, "SELECT * FROM orders WHERE updated_at > $1 ORDER BY updated_at ASC LIMIT $2", got)
}

func TestNextWatermark_AdvancesToMaxObservedValue(t *testing.T) {
	rows := []map[string]interface{}{
		{"updated_at": 5},
		{"updated_at": 12},
		{"updated_at": 3},
	}
	got := NextWatermark(rows, "updated_at", 0)
	assert.Equal(t, 12, got)
}

func TestNextWatermark_EmptyRowsKeepsLastWatermarkUnchanged(t *testing.T) {
	got := NextWatermark(nil, "updated_at", 42)
	assert.Equal(t, 42, got)
}

func TestNextWatermark_NeverRegressesBelowLastWatermark(t *testing.T) {
	rows := []map[string]interface{}{{"updated_at": 3}}
	got := NextWatermark(rows, "updated_at", 10)
	assert.Equal(t, 10, got, "a batch entirely behind the current watermark must not move it backward")
}

func TestNextWatermark_RepeatedCallsWithSameBatchAreIdempotent(t *testing.T) {
	rows := []map[string]interface{}{{"updated_at": 7}, {"updated_at": 9}}

	first := NextWatermark(rows, "updated_at", 5)
	second := NextWatermark(rows, "updated_at", first)

	assert.Equal(t, first, second, "re-applying the same already-seen batch must not advance the watermark further")
}

func TestNextWatermark_StringComparisonFallback(t *testing.T) {
	rows := []map[string]interface{}{{"updated_at": "2026-01-05"}, {"updated_at": "2026-01-02"}}
	got := NextWatermark(rows, "updated_at", "2026-01-01")
	assert.Equal(t, "2026-01-05", got)
}

func TestParseIncrementalConfig_DisabledWithoutWatermarkColumn(t *testing.T) {
	cfg := parseIncrementalConfig(map[string]interface{}{"table": "orders"})
	assert.False(t, cfg.enabled)
}

func TestParseIncrementalConfig_EnabledWithDefaults(t *testing.T) {
	cfg := parseIncrementalConfig(map[string]interface{}{
		"table":            "orders",
		"watermark_column": "updated_at",
		"last_watermark":   100,
	})
	require.True(t, cfg.enabled)
	assert.Equal(t, "orders", cfg.table)
	assert.Equal(t, "updated_at", cfg.watermarkCol)
	assert.Equal(t, 100, cfg.lastWatermark)
	assert.Equal(t, 1000, cfg.batchSize, "batch_size must default to 1000 when unset")
}

func TestNormalizeScanned_ConvertsByteSliceToString(t *testing.T) {
	assert.Equal(t, "hello", normalizeScanned([]byte("hello")))
	assert.Equal(t, 42, normalizeScanned(42))
}

func TestRequireString_RejectsMissingAndEmptyAndNonString(t *testing.T) {
	_, err := requireString(map[string]interface{}{}, "dsn")
	require.Error(t, err)

	_, err = requireString(map[string]interface{}{"dsn": ""}, "dsn")
	require.Error(t, err)

	_, err = requireString(map[string]interface{}{"dsn": 5}, "dsn")
	require.Error(t, err)

	v, err := requireString(map[string]interface{}{"dsn": "host=x"}, "dsn")
	require.NoError(t, err)
	assert.Equal(t, "host=x", v)
}

func TestOptionalInt_ParsesStringFallback(t *testing.T) {
	assert.Equal(t, 42, optionalInt(map[string]interface{}{"port": "42"}, "port", 0))
	assert.Equal(t, 7, optionalInt(map[string]interface{}{}, "port", 7))
}
