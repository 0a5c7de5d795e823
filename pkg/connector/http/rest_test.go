package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRESTConnector(t *testing.T, baseURL string) *RESTConnector {
	t.Helper()
	conn, err := newRESTConnector(map[string]interface{}{"base_url": baseURL})
	require.NoError(t, err)
	rest := conn.(*RESTConnector)
	require.NoError(t, rest.Connect(context.Background()))
	t.Cleanup(func() { _ = rest.Close() })
	return rest
}

func TestNewRESTConnector_RequiresBaseURL(t *testing.T) {
	_, err := newRESTConnector(map[string]interface{}{})
	require.Error(t, err)
}

func TestRESTConnector_Fetch_JSONArrayFansOutToOneRowPerElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": float64(1), "name": "alice"},
			{"id": float64(2), "name": "bob"},
		})
	}))
	defer server.Close()

	rest := newTestRESTConnector(t, server.URL)
	result, err := rest.Fetch(context.Background(), "/users")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Items, 2)

	assert.Equal(t, model.KindRow, result.Items[0].Kind)
	assert.Equal(t, "alice", result.Items[0].Row["name"])
	assert.Equal(t, "bob", result.Items[1].Row["name"])
}

func TestRESTConnector_Fetch_JSONObjectBecomesSingleRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	}))
	defer server.Close()

	rest := newTestRESTConnector(t, server.URL)
	result, err := rest.Fetch(context.Background(), "/health")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.KindRow, result.Items[0].Kind)
	assert.Equal(t, "ok", result.Items[0].Row["status"])
}

func TestRESTConnector_Fetch_NonJSONBecomesScalar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	defer server.Close()

	rest := newTestRESTConnector(t, server.URL)
	result, err := rest.Fetch(context.Background(), "/ping")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, model.KindScalar, result.Items[0].Kind)
	assert.Equal(t, "pong", result.Items[0].Scalar)
}

func TestRESTConnector_Fetch_NonSuccessStatusReportedAsFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	rest := newTestRESTConnector(t, server.URL)
	result, err := rest.Fetch(context.Background(), "/broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 500, result.Metadata["status_code"])
}

func TestRESTConnector_Fetch_EmptyQueryRejected(t *testing.T) {
	rest := newTestRESTConnector(t, "http://example.invalid")
	_, err := rest.Fetch(context.Background(), "")
	require.Error(t, err)
}

func TestRESTConnector_Fetch_NotConnectedRejected(t *testing.T) {
	conn, err := newRESTConnector(map[string]interface{}{"base_url": "http://example.invalid"})
	require.NoError(t, err)
	_, err = conn.Fetch(context.Background(), "/x")
	require.Error(t, err)
}

func TestRESTConnector_Fetch_SendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer server.Close()

	conn, err := newRESTConnector(map[string]interface{}{"base_url": server.URL, "token": "secret-token"})
	require.NoError(t, err)
	rest := conn.(*RESTConnector)
	require.NoError(t, rest.Connect(context.Background()))
	defer rest.Close()

	_, err = rest.Fetch(context.Background(), "/secure")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}
