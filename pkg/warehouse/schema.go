package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// EnsureTableExists creates table if it does not exist, inferring column
// types from rows, and additively alters it with any columns rows introduce
// that the existing table lacks. Columns are never dropped or retyped. The
// DDL for a single call runs inside one transaction: either the CREATE for
// a missing table, or the sequence of ALTERs for an existing one.
func EnsureTableExists(ctx context.Context, db DB, schema, table string, rows []map[string]interface{}) error {
	dialect := db.Dialect()
	qualified := qualify(dialect, schema, table)

	columns := inferColumns(rows)

	exists, err := tableExists(ctx, db, schema, table)
	if err != nil {
		return err
	}

	if !exists {
		defs := make([]string, 0, len(columns)+2)
		for _, col := range columns {
			defs = append(defs, dialect.QuoteIdentifier(col.name)+" "+dialect.ColumnType(col.kind))
		}
		defs = append(defs, fmt.Sprintf("%s %s DEFAULT %s", dialect.QuoteIdentifier("_loaded_at"), dialect.TimestampType(), dialect.NowExpr()))
		defs = append(defs, dialect.QuoteIdentifier("_source_file")+" TEXT")

		createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(defs, ", "))
		logger.Get().Info("ensuring table exists", zap.String("table", qualified), zap.String("ddl", createSQL))

		tx, err := db.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin create-table transaction")
		}
		if err := tx.Exec(ctx, createSQL); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to create table")
		}
		if err := tx.Commit(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit create-table transaction")
		}
		return nil
	}

	existing, err := existingColumns(ctx, db, schema, table)
	if err != nil {
		return err
	}

	allColumns := append([]inferredColumn{}, columns...)
	allColumns = append(allColumns,
		inferredColumn{name: "_loaded_at", kind: ColumnDatetime},
		inferredColumn{name: "_source_file", kind: ColumnString},
	)

	var pending []inferredColumn
	for _, col := range allColumns {
		if _, ok := existing[strings.ToLower(col.name)]; !ok {
			pending = append(pending, col)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to begin schema-evolution transaction")
	}
	for _, col := range pending {
		colType := dialect.ColumnType(col.kind)
		if col.name == "_loaded_at" {
			colType = fmt.Sprintf("%s DEFAULT %s", dialect.TimestampType(), dialect.NowExpr())
		}

		alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", qualified, dialect.QuoteIdentifier(col.name), colType)
		logger.Get().Info("adding missing column", zap.String("table", qualified), zap.String("column", col.name))
		if err := tx.Exec(ctx, alterSQL); err != nil {
			_ = tx.Rollback(ctx)
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to add column "+col.name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to commit schema-evolution transaction")
	}
	return nil
}

type inferredColumn struct {
	name string
	kind ColumnKind
}

// inferColumns derives a stable, deduplicated column list from observed row
// keys, in first-seen row order with each row's keys sorted by name, so
// generated DDL is deterministic across repeated calls with the same input
// shape.
func inferColumns(rows []map[string]interface{}) []inferredColumn {
	seen := make(map[string]bool)
	var columns []inferredColumn

	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key := range row {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if key == "_loaded_at" || key == "_source_file" {
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			columns = append(columns, inferredColumn{name: key, kind: inferKind(row[key])})
		}
	}

	return columns
}

func inferKind(value interface{}) ColumnKind {
	switch value.(type) {
	case string:
		return ColumnString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ColumnInteger
	case float32, float64:
		return ColumnFloat
	case bool:
		return ColumnBoolean
	case time.Time:
		return ColumnDatetime
	default:
		return ColumnOther
	}
}

func tableExists(ctx context.Context, db DB, schema, table string) (bool, error) {
	query, args := db.Dialect().TableExistsQuery(schema, table)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table existence")
	}
	if len(rows) == 0 {
		return false, nil
	}

	for _, v := range rows[0] {
		switch t := v.(type) {
		case bool:
			return t, nil
		case int64:
			return t > 0, nil
		case int:
			return t > 0, nil
		}
	}
	return false, nil
}

func existingColumns(ctx context.Context, db DB, schema, table string) (map[string]bool, error) {
	query, args := db.Dialect().ColumnsQuery(schema, table)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read existing columns")
	}

	cols := make(map[string]bool, len(rows))
	for _, row := range rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				cols[strings.ToLower(s)] = true
				break
			}
		}
	}
	return cols, nil
}
