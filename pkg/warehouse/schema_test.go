package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTableExists_CreatesWhenAbsent(t *testing.T) {
	db := &fakeDB{
		dialect:      SQLiteDialect{},
		queryResults: [][]map[string]interface{}{{{"exists": false}}},
	}

	rows := []map[string]interface{}{
		{"id": 1, "name": "alice", "active": true},
	}

	err := EnsureTableExists(context.Background(), db, "", "customers", rows)
	require.NoError(t, err)

	require.Len(t, db.execCalls, 1)
	ddl := db.execCalls[0].query
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS")
	assert.Contains(t, ddl, `"customers"`)
	assert.Contains(t, ddl, `"id"`)
	assert.Contains(t, ddl, `"_loaded_at"`)
	assert.Contains(t, ddl, `"_source_file"`)
}

func TestEnsureTableExists_AddsMissingColumnsAdditively(t *testing.T) {
	db := &fakeDB{
		dialect: SQLiteDialect{},
		queryResults: [][]map[string]interface{}{
			{{"exists": true}},
			{{"name": "id"}, {"name": "name"}, {"name": "_loaded_at"}, {"name": "_source_file"}},
		},
	}

	rows := []map[string]interface{}{
		{"id": 1, "name": "alice", "signup_date": "2026-01-01"},
	}

	err := EnsureTableExists(context.Background(), db, "", "customers", rows)
	require.NoError(t, err)

	require.Len(t, db.execCalls, 1, "only the new column should trigger an ALTER")
	alter := db.execCalls[0].query
	assert.Contains(t, alter, "ALTER TABLE")
	assert.Contains(t, alter, `"signup_date"`)
}

func TestEnsureTableExists_NoOpWhenNoNewColumns(t *testing.T) {
	db := &fakeDB{
		dialect: SQLiteDialect{},
		queryResults: [][]map[string]interface{}{
			{{"exists": true}},
			{{"name": "id"}, {"name": "_loaded_at"}, {"name": "_source_file"}},
		},
	}

	rows := []map[string]interface{}{{"id": 1}}

	err := EnsureTableExists(context.Background(), db, "", "customers", rows)
	require.NoError(t, err)
	assert.Empty(t, db.execCalls, "existing columns must never trigger DDL")
}

func TestInferColumns_PreservesFirstSeenOrderAndDedups(t *testing.T) {
	rows := []map[string]interface{}{
		{"b": 1, "a": "x"},
		{"a": "y", "c": true},
	}
	columns := inferColumns(rows)
	require.Len(t, columns, 3)

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestInferKind(t *testing.T) {
	assert.Equal(t, ColumnString, inferKind("x"))
	assert.Equal(t, ColumnInteger, inferKind(42))
	assert.Equal(t, ColumnInteger, inferKind(int64(42)))
	assert.Equal(t, ColumnFloat, inferKind(3.14))
	assert.Equal(t, ColumnBoolean, inferKind(true))
	assert.Equal(t, ColumnOther, inferKind(nil))
	assert.Equal(t, ColumnOther, inferKind([]string{"a"}))
}

func TestQualify_OmitsSchemaWhenEmpty(t *testing.T) {
	assert.Equal(t, `"customers"`, qualify(SQLiteDialect{}, "", "customers"))
	assert.Equal(t, `"public"."customers"`, qualify(PostgresDialect{}, "public", "customers"))
}
