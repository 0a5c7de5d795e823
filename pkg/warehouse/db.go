// Package warehouse implements the destination-side schema management,
// batched loading, and run audit trail against the target data warehouse.
// Unlike source protocols, the warehouse is not a registered connector: it
// is addressed directly through the DB interface below so the orchestrator
// can run DDL and parameterized INSERTs without going through Fetch.
package warehouse

import (
	"context"
	"database/sql"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the minimal surface the schema manager, loader, and audit store
// need against a warehouse connection, abstracting over database/sql (used
// by MySQL, MSSQL, Oracle, SQLite) and pgx's native pool (used by Postgres).
type DB interface {
	Dialect() Dialect
	Exec(ctx context.Context, query string, args ...interface{}) error
	Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a transaction opened against a DB. Every statement run through it
// participates in the same transaction until Commit or Rollback.
type Tx interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// sqlTx adapts a database/sql transaction to the Tx interface.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "exec failed")
	}
	return nil
}

func (t *sqlTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "commit failed")
	}
	return nil
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, errors.ErrorTypeQuery, "rollback failed")
	}
	return nil
}

// SQLDB adapts a database/sql handle to the DB interface.
type SQLDB struct {
	conn    *sql.DB
	dialect Dialect
}

// NewSQLDB wraps a database/sql handle for the given dialect.
func NewSQLDB(conn *sql.DB, dialect Dialect) *SQLDB {
	return &SQLDB{conn: conn, dialect: dialect}
}

// Dialect returns the SQL dialect this handle targets.
func (d *SQLDB) Dialect() Dialect { return d.dialect }

// Exec runs a statement with no result rows expected.
func (d *SQLDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "exec failed")
	}
	return nil
}

// Query runs a statement and collects the results as column-name-keyed maps.
func (d *SQLDB) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	defer rows.Close()
	return scanRows(rows)
}

// Begin opens a database/sql transaction.
func (d *SQLDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin transaction")
	}
	return &sqlTx{tx: tx}, nil
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read columns")
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row")
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// pgxTx adapts a pgx transaction to the Tx interface.
type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "exec failed")
	}
	return nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "commit failed")
	}
	return nil
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return errors.Wrap(err, errors.ErrorTypeQuery, "rollback failed")
	}
	return nil
}

// PgxDB adapts a pgxpool.Pool to the DB interface.
type PgxDB struct {
	pool    *pgxpool.Pool
	dialect Dialect
}

// NewPgxDB wraps a pgx pool as a Postgres DB handle.
func NewPgxDB(pool *pgxpool.Pool) *PgxDB {
	return &PgxDB{pool: pool, dialect: PostgresDialect{}}
}

// Dialect returns PostgresDialect.
func (d *PgxDB) Dialect() Dialect { return d.dialect }

// Exec runs a statement with no result rows expected.
func (d *PgxDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := d.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "exec failed")
	}
	return nil
}

// Query runs a statement and collects the results as column-name-keyed maps.
func (d *PgxDB) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var results []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan row")
		}
		row := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// Begin opens a pgx transaction.
func (d *PgxDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin transaction")
	}
	return &pgxTx{tx: tx}, nil
}
