package warehouse

import (
	"strconv"
	"strings"
)

// Dialect captures the identifier-quoting, type-mapping, and
// metadata-query differences between SQL engines so the schema manager and
// loader can stay dialect-agnostic.
type Dialect interface {
	Name() string

	// QuoteIdentifier quotes and escapes a single identifier (table,
	// column, or schema name). Escaping the embedded delimiter is
	// required for safety; a quote-without-escape implementation lets an
	// identifier containing the delimiter break out of the quoted form.
	QuoteIdentifier(name string) string

	// ColumnType maps an inferred Arrow-level kind to this dialect's DDL
	// type name.
	ColumnType(kind ColumnKind) string

	// TimestampType is the DDL type used for _loaded_at.
	TimestampType() string

	// NowExpr is the DDL default-value expression for "current time".
	NowExpr() string

	// TableExistsQuery returns a query and its args that yield a single
	// boolean/0-1 row indicating whether table exists.
	TableExistsQuery(schema, table string) (string, []interface{})

	// ColumnsQuery returns a query and its args whose rows' first column
	// is an existing column name of table.
	ColumnsQuery(schema, table string) (string, []interface{})

	// Placeholder returns the positional parameter marker for position n
	// (1-based) in a parameterized statement.
	Placeholder(n int) string
}

// ColumnKind is the inferred logical type of a staged column, independent
// of any specific SQL dialect.
type ColumnKind int

const (
	// ColumnString is an inferred text column.
	ColumnString ColumnKind = iota
	// ColumnInteger is an inferred 32/64-bit integer column.
	ColumnInteger
	// ColumnFloat is an inferred 32/64-bit floating point column.
	ColumnFloat
	// ColumnBoolean is an inferred boolean column.
	ColumnBoolean
	// ColumnDate is an inferred date-only column.
	ColumnDate
	// ColumnDatetime is an inferred timestamp column.
	ColumnDatetime
	// ColumnOther is the fallback for unrecognized value shapes.
	ColumnOther
)

// qualify joins a quoted schema and table name, omitting the schema when empty.
func qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// PostgresDialect implements Dialect for PostgreSQL.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (PostgresDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnString:
		return "TEXT"
	case ColumnInteger:
		return "BIGINT"
	case ColumnFloat:
		return "DOUBLE PRECISION"
	case ColumnBoolean:
		return "BOOLEAN"
	case ColumnDate:
		return "DATE"
	case ColumnDatetime:
		return "TIMESTAMP WITH TIME ZONE"
	default:
		return "TEXT"
	}
}

func (PostgresDialect) TimestampType() string { return "TIMESTAMP WITH TIME ZONE" }
func (PostgresDialect) NowExpr() string        { return "now()" }

func (PostgresDialect) TableExistsQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "public"
	}
	return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		[]interface{}{schema, table}
}

func (PostgresDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "public"
	}
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		[]interface{}{schema, table}
}

func (PostgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// MySQLDialect implements Dialect for MySQL/MariaDB.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQLDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnString:
		return "TEXT"
	case ColumnInteger:
		return "BIGINT"
	case ColumnFloat:
		return "DOUBLE"
	case ColumnBoolean:
		return "BOOLEAN"
	case ColumnDate:
		return "DATE"
	case ColumnDatetime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (MySQLDialect) TimestampType() string { return "DATETIME" }
func (MySQLDialect) NowExpr() string        { return "CURRENT_TIMESTAMP" }

func (MySQLDialect) TableExistsQuery(schema, table string) (string, []interface{}) {
	return `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?)`,
		[]interface{}{table}
}

func (MySQLDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`,
		[]interface{}{table}
}

func (MySQLDialect) Placeholder(n int) string { return "?" }

// MSSQLDialect implements Dialect for Microsoft SQL Server.
type MSSQLDialect struct{}

func (MSSQLDialect) Name() string { return "mssql" }

func (MSSQLDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (MSSQLDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnString:
		return "NVARCHAR(MAX)"
	case ColumnInteger:
		return "BIGINT"
	case ColumnFloat:
		return "FLOAT"
	case ColumnBoolean:
		return "BIT"
	case ColumnDate:
		return "DATE"
	case ColumnDatetime:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (MSSQLDialect) TimestampType() string { return "DATETIMEOFFSET" }
func (MSSQLDialect) NowExpr() string        { return "SYSDATETIMEOFFSET()" }

func (MSSQLDialect) TableExistsQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "dbo"
	}
	return `SELECT CASE WHEN EXISTS (SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2) THEN 1 ELSE 0 END`,
		[]interface{}{schema, table}
}

func (MSSQLDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "dbo"
	}
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`,
		[]interface{}{schema, table}
}

func (MSSQLDialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

// OracleDialect implements Dialect for Oracle Database.
type OracleDialect struct{}

func (OracleDialect) Name() string { return "oracle" }

func (OracleDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}

func (OracleDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnString:
		return "CLOB"
	case ColumnInteger:
		return "NUMBER(19)"
	case ColumnFloat:
		return "BINARY_DOUBLE"
	case ColumnBoolean:
		return "NUMBER(1)"
	case ColumnDate:
		return "DATE"
	case ColumnDatetime:
		return "TIMESTAMP WITH TIME ZONE"
	default:
		return "CLOB"
	}
}

func (OracleDialect) TimestampType() string { return "TIMESTAMP WITH TIME ZONE" }
func (OracleDialect) NowExpr() string        { return "SYSTIMESTAMP" }

func (OracleDialect) TableExistsQuery(schema, table string) (string, []interface{}) {
	return `SELECT COUNT(*) FROM all_tables WHERE table_name = :1`,
		[]interface{}{strings.ToUpper(table)}
}

func (OracleDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	return `SELECT column_name FROM all_tab_columns WHERE table_name = :1`,
		[]interface{}{strings.ToUpper(table)}
}

func (OracleDialect) Placeholder(n int) string { return ":" + strconv.Itoa(n) }

// SQLiteDialect implements Dialect for SQLite.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLiteDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnString:
		return "TEXT"
	case ColumnInteger:
		return "BIGINT"
	case ColumnFloat:
		return "DOUBLE PRECISION"
	case ColumnBoolean:
		return "BOOLEAN"
	case ColumnDate:
		return "DATE"
	case ColumnDatetime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (SQLiteDialect) TimestampType() string { return "TIMESTAMP" }
func (SQLiteDialect) NowExpr() string        { return "CURRENT_TIMESTAMP" }

func (SQLiteDialect) TableExistsQuery(schema, table string) (string, []interface{}) {
	return `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type='table' AND name = ?)`,
		[]interface{}{table}
}

func (SQLiteDialect) ColumnsQuery(schema, table string) (string, []interface{}) {
	return `SELECT name FROM pragma_table_info(?)`, []interface{}{table}
}

func (SQLiteDialect) Placeholder(n int) string { return "?" }

