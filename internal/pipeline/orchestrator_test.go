package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB is a minimal warehouse.DB double: every Exec succeeds, and every
// Query reports the target table as absent, so once rows reach the loader
// EnsureTableExists takes its CREATE path.
type fakeDB struct {
	execCount int
}

func (f *fakeDB) Dialect() warehouse.Dialect { return warehouse.SQLiteDialect{} }

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	f.execCount++
	return nil
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	return []map[string]interface{}{{"exists": false}}, nil
}

func (f *fakeDB) Begin(ctx context.Context) (warehouse.Tx, error) {
	return &fakeTx{db: f}, nil
}

// fakeTx delegates Exec to the fakeDB it was opened from so execCount stays
// a single counter regardless of whether a call went through a transaction.
type fakeTx struct {
	db *fakeDB
}

func (f *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) error {
	return f.db.Exec(ctx, query, args...)
}

func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeConnector struct {
	connectErr error
	fetchErr   error
	result     *model.IngestionResult
	closed     bool
}

func (f *fakeConnector) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	return f.result, f.fetchErr
}
func (f *fakeConnector) Close() error {
	f.closed = true
	return nil
}

// registerFakeProtocol registers conn under a test-unique protocol name in
// the global registry. It does not clear the registry on cleanup: doing so
// would also drop the real connector families other tests in this package
// register via blank import, so callers must pick protocol names that do
// not collide with real protocols or other tests' fake ones.
func registerFakeProtocol(t *testing.T, protocol string, conn core.Connector) {
	t.Helper()
	require.NoError(t, registry.Register(protocol, func(cfg map[string]interface{}) (core.Connector, error) {
		return conn, nil
	}))
}

func TestRun_SuccessPath(t *testing.T) {
	conn := &fakeConnector{
		result: &model.IngestionResult{
			Protocol: "fake-success",
			Success:  true,
			Items: []model.IngestedItem{
				{Kind: model.KindRows, Rows: []map[string]interface{}{{"id": 1}, {"id": 2}}},
			},
			FetchedAt: time.Now().UTC(),
		},
	}
	registerFakeProtocol(t, "fake-success", conn)

	db := &fakeDB{}
	outcome, err := Run(context.Background(), Params{
		ConnectorConfig: map[string]interface{}{"protocol": "fake-success"},
		SourceName:      "orders",
		TargetTable:     "orders",
		LakeRoot:        t.TempDir(),
		DW:              db,
		PipelineName:    "test-pipeline",
	})

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "success", outcome.Status)
	assert.Equal(t, 2, outcome.RowsLoaded)
	assert.Equal(t, 1, outcome.ParquetFiles)
	assert.NotEmpty(t, outcome.RunID)
	assert.True(t, conn.closed)
}

func TestRun_ConnectFailureWritesAuditAndReturnsError(t *testing.T) {
	conn := &fakeConnector{connectErr: assert.AnError}
	registerFakeProtocol(t, "fake-connect-fail", conn)

	db := &fakeDB{}
	outcome, err := Run(context.Background(), Params{
		ConnectorConfig: map[string]interface{}{"protocol": "fake-connect-fail"},
		SourceName:      "orders",
		TargetTable:     "orders",
		LakeRoot:        t.TempDir(),
		DW:              db,
		PipelineName:    "test-pipeline",
	})

	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.Greater(t, db.execCount, 0, "a failure audit row must still be written")
}

func TestRun_FetchFailureWritesAuditAndReturnsError(t *testing.T) {
	conn := &fakeConnector{fetchErr: assert.AnError}
	registerFakeProtocol(t, "fake-fetch-fail", conn)

	db := &fakeDB{}
	outcome, err := Run(context.Background(), Params{
		ConnectorConfig: map[string]interface{}{"protocol": "fake-fetch-fail"},
		SourceName:      "orders",
		TargetTable:     "orders",
		LakeRoot:        t.TempDir(),
		DW:              db,
		PipelineName:    "test-pipeline",
	})

	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, conn.closed, "connector must be closed even when Fetch fails")
}

func TestRun_UnsuccessfulResultYieldsFailureOutcomeWithoutError(t *testing.T) {
	conn := &fakeConnector{
		result: &model.IngestionResult{
			Protocol: "fake-unsuccessful",
			Success:  false,
			Metadata: map[string]interface{}{"error": "upstream rejected query"},
		},
	}
	registerFakeProtocol(t, "fake-unsuccessful", conn)

	db := &fakeDB{}
	outcome, err := Run(context.Background(), Params{
		ConnectorConfig: map[string]interface{}{"protocol": "fake-unsuccessful"},
		SourceName:      "orders",
		TargetTable:     "orders",
		LakeRoot:        t.TempDir(),
		DW:              db,
		PipelineName:    "test-pipeline",
	})

	require.NoError(t, err, "an unsuccessful fetch result is reported via outcome, not error")
	require.NotNil(t, outcome)
	assert.Equal(t, "failure", outcome.Status)
	assert.Contains(t, outcome.Error, "upstream rejected query")
}

func TestRun_UnknownProtocolFails(t *testing.T) {
	db := &fakeDB{}
	outcome, err := Run(context.Background(), Params{
		ConnectorConfig: map[string]interface{}{"protocol": "does-not-exist-protocol"},
		SourceName:      "orders",
		TargetTable:     "orders",
		LakeRoot:        t.TempDir(),
		DW:              db,
		PipelineName:    "test-pipeline",
	})

	require.Error(t, err)
	assert.Nil(t, outcome)
}
