package stream

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_ParsesJSONWhenPossible(t *testing.T) {
	got := decodePayload([]byte(`{"id":1}`))
	assert.Equal(t, map[string]interface{}{"id": float64(1)}, got)
}

func TestDecodePayload_FallsBackToRawStringForNonJSON(t *testing.T) {
	got := decodePayload([]byte("not json"))
	assert.Equal(t, "not json", got)
}

func TestDecodePayload_NilPayloadReturnsNil(t *testing.T) {
	assert.Nil(t, decodePayload(nil))
}

func TestBuildRecord_IncludesMessageKeyOnlyWhenSet(t *testing.T) {
	withKey := buildRecord("kafka", "orders", []byte(`{"id":1}`), "key-1", map[string]interface{}{"partition": 0})
	assert.Equal(t, "key-1", withKey["message_key"])
	assert.Equal(t, "kafka", withKey["protocol"])
	assert.Equal(t, "orders", withKey["stream"])

	withoutKey := buildRecord("nats", "orders", []byte(`{"id":1}`), "", nil)
	_, hasKey := withoutKey["message_key"]
	assert.False(t, hasKey)
}

func TestBuildRecord_PayloadAndMetadataAreJSONEncodedStrings(t *testing.T) {
	row := buildRecord("amqp", "orders", []byte(`{"id":1}`), "", map[string]interface{}{"routing_key": "orders.created"})

	payloadStr, ok := row["payload"].(string)
	require.True(t, ok)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payloadStr), &decoded))
	assert.Equal(t, float64(1), decoded["id"])

	metadataStr, ok := row["metadata"].(string)
	require.True(t, ok)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(metadataStr), &meta))
	assert.Equal(t, "orders.created", meta["routing_key"])
}

func TestBatchDeadline_DoneOnMessageCount(t *testing.T) {
	d := newBatchDeadline(3, time.Minute)
	assert.False(t, d.done(2))
	assert.True(t, d.done(3))
	assert.True(t, d.done(4))
}

func TestBatchDeadline_DoneOnElapsedTime(t *testing.T) {
	d := newBatchDeadline(1000, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, d.done(0))
}

func TestOptionalFloat_CoercesIntTypes(t *testing.T) {
	assert.Equal(t, 5.0, optionalFloat(map[string]interface{}{"x": 5}, "x", 0))
	assert.Equal(t, 5.0, optionalFloat(map[string]interface{}{"x": int64(5)}, "x", 0))
	assert.Equal(t, 2.5, optionalFloat(map[string]interface{}{"x": 2.5}, "x", 0))
	assert.Equal(t, 9.0, optionalFloat(map[string]interface{}{}, "x", 9))
}

func TestStageBatch_WritesAFileUnderLakeRoot(t *testing.T) {
	lakeRoot := t.TempDir()
	rows := []map[string]interface{}{
		{"protocol": "kafka", "stream": "orders", "payload": `{"id":1}`},
	}

	path, err := stageBatch("kafka", "orders", lakeRoot, rows)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	assert.True(t, filepath.IsAbs(path) || filepath.Dir(path) != ".", "staged path should be rooted under the lake")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStageBatch_EmptyBatchWritesNothing(t *testing.T) {
	path, err := stageBatch("kafka", "orders", t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}
