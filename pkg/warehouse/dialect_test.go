package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier_EscapesEmbeddedDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		input   string
		want    string
	}{
		{"postgres", PostgresDialect{}, `weird"name`, `"weird""name"`},
		{"mysql", MySQLDialect{}, "weird`name", "`weird``name`"},
		{"mssql", MSSQLDialect{}, "weird]name", "[weird]]name]"},
		{"oracle", OracleDialect{}, `weird"name`, `"WEIRD""NAME"`},
		{"sqlite", SQLiteDialect{}, `weird"name`, `"weird""name"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.QuoteIdentifier(tt.input))
		})
	}
}

func TestPlaceholder_PerDialectStyle(t *testing.T) {
	assert.Equal(t, "$3", PostgresDialect{}.Placeholder(3))
	assert.Equal(t, "?", MySQLDialect{}.Placeholder(3))
	assert.Equal(t, "@p3", MSSQLDialect{}.Placeholder(3))
	assert.Equal(t, ":3", OracleDialect{}.Placeholder(3))
	assert.Equal(t, "?", SQLiteDialect{}.Placeholder(3))
}

func TestColumnType_CoversEveryKind(t *testing.T) {
	dialects := []Dialect{PostgresDialect{}, MySQLDialect{}, MSSQLDialect{}, OracleDialect{}, SQLiteDialect{}}
	kinds := []ColumnKind{ColumnString, ColumnInteger, ColumnFloat, ColumnBoolean, ColumnDate, ColumnDatetime, ColumnOther}

	for _, d := range dialects {
		for _, k := range kinds {
			assert.NotEmpty(t, d.ColumnType(k), "%s must map every ColumnKind to a non-empty DDL type", d.Name())
		}
	}
}

func TestTableExistsQuery_DefaultsSchemaWhenEmpty(t *testing.T) {
	query, args := PostgresDialect{}.TableExistsQuery("", "orders")
	assert.Contains(t, query, "information_schema.tables")
	assert.Equal(t, []interface{}{"public", "orders"}, args)

	query, args = MSSQLDialect{}.TableExistsQuery("", "orders")
	assert.Contains(t, query, "INFORMATION_SCHEMA.TABLES")
	assert.Equal(t, []interface{}{"dbo", "orders"}, args)
}

func TestOracleDialect_UppercasesIdentifiersInMetadataQueries(t *testing.T) {
	_, args := OracleDialect{}.TableExistsQuery("", "orders")
	assert.Equal(t, []interface{}{"ORDERS"}, args)

	_, args = OracleDialect{}.ColumnsQuery("", "orders")
	assert.Equal(t, []interface{}{"ORDERS"}, args)
}
