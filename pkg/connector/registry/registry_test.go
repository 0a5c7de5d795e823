package registry

import (
	"context"
	"testing"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct{}

func (fakeConnector) Connect(ctx context.Context) error { return nil }
func (fakeConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	return &model.IngestionResult{Success: true}, nil
}
func (fakeConnector) Close() error { return nil }

func TestRegistry_RegisterCreateRoundTrip(t *testing.T) {
	r := NewRegistry()

	err := r.Register("fake", func(cfg map[string]interface{}) (core.Connector, error) {
		return fakeConnector{}, nil
	})
	require.NoError(t, err)

	assert.True(t, r.Has("fake"))
	assert.Contains(t, r.List(), "fake")

	conn, err := r.Create("fake", map[string]interface{}{"host": "x"})
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg map[string]interface{}) (core.Connector, error) { return fakeConnector{}, nil }

	require.NoError(t, r.Register("fake", factory))
	err := r.Register("fake", factory)
	require.Error(t, err)
}

func TestRegistry_CreateUnknownProtocolFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("unknown", nil)
	require.Error(t, err)
}

func TestRegistry_CreateWrapsFactoryError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("broken", func(cfg map[string]interface{}) (core.Connector, error) {
		return nil, assert.AnError
	}))

	_, err := r.Create("broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("fake", func(cfg map[string]interface{}) (core.Connector, error) {
		return fakeConnector{}, nil
	}))

	r.Clear()
	assert.False(t, r.Has("fake"))
	assert.Empty(t, r.List())
}

func TestCatalog_DescribeAndLookup(t *testing.T) {
	Describe(&ConnectorInfo{Protocol: "widget-test", Description: "a widget", Capabilities: []string{"fetch"}})

	info, ok := DescribeOf("widget-test")
	require.True(t, ok)
	assert.Equal(t, "a widget", info.Description)

	found := false
	for _, entry := range Catalogue() {
		if entry.Protocol == "widget-test" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCatalog_UnknownProtocolNotFound(t *testing.T) {
	_, ok := DescribeOf("no-such-protocol-xyz")
	assert.False(t, ok)
}
