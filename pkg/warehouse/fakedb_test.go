package warehouse

import "context"

// fakeDB is an in-memory DB double that records every Exec/Query call so
// schema and audit logic can be tested without a live database driver.
type fakeDB struct {
	dialect Dialect

	execCalls  []fakeCall
	queryCalls []fakeCall

	// queryResults is consumed in order by successive Query calls; when
	// exhausted, an empty result set is returned.
	queryResults [][]map[string]interface{}
	queryErr     error
	execErr      error
	beginErr     error
}

type fakeCall struct {
	query string
	args  []interface{}
}

func (f *fakeDB) Dialect() Dialect { return f.dialect }

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	f.execCalls = append(f.execCalls, fakeCall{query: query, args: args})
	return f.execErr
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	f.queryCalls = append(f.queryCalls, fakeCall{query: query, args: args})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	idx := len(f.queryCalls) - 1
	if idx < len(f.queryResults) {
		return f.queryResults[idx], nil
	}
	return nil, nil
}

func (f *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{db: f}, nil
}

// fakeTx routes Exec through the fakeDB it was opened from, so
// execCalls/execErr still drive test assertions regardless of whether a
// call went through a transaction.
type fakeTx struct {
	db *fakeDB
}

func (f *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) error {
	return f.db.Exec(ctx, query, args...)
}

func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }
