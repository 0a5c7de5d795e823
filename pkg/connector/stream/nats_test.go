package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATSConnector_RequiresServersAndSubject(t *testing.T) {
	_, err := newNATSConnector(map[string]interface{}{"subject": "orders"})
	require.Error(t, err, "missing servers must be rejected")

	_, err = newNATSConnector(map[string]interface{}{"servers": []string{"nats://localhost:4222"}})
	require.Error(t, err, "missing subject must be rejected")

	conn, err := newNATSConnector(map[string]interface{}{
		"servers": []string{"nats://localhost:4222"},
		"subject": "orders",
	})
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestStringSlice_AcceptsMultipleShapes(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringSlice(map[string]interface{}{"servers": []string{"a", "b"}}, "servers"))
	assert.Equal(t, []string{"a", "b"}, stringSlice(map[string]interface{}{"servers": []interface{}{"a", "b"}}, "servers"))
	assert.Equal(t, []string{"a", "b"}, stringSlice(map[string]interface{}{"servers": "a,b"}, "servers"))
	assert.Nil(t, stringSlice(map[string]interface{}{}, "servers"))
}

func TestNATSConnector_FetchRejectsWhenNotConnected(t *testing.T) {
	conn, err := newNATSConnector(map[string]interface{}{
		"servers": []string{"nats://localhost:4222"},
		"subject": "orders",
	})
	require.NoError(t, err)

	_, err = conn.Fetch(context.Background(), "orders")
	require.Error(t, err)
}
