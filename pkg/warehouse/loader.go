package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// Load reads each staged Parquet file in paths, ensures the target table
// carries its columns, and appends its rows tagged with the file's
// basename as _source_file. Returns the total number of rows inserted
// across all files.
func Load(ctx context.Context, db DB, schema, table string, paths []string) (int, error) {
	total := 0

	for _, path := range paths {
		rows, err := readParquet(path)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			continue
		}

		sourceFile := filepath.Base(path)
		for _, row := range rows {
			row["_source_file"] = sourceFile
		}

		if err := EnsureTableExists(ctx, db, schema, table, rows); err != nil {
			return total, err
		}

		if err := insertRows(ctx, db, schema, table, rows); err != nil {
			return total, err
		}

		total += len(rows)
		logger.Get().Info("loaded staged file", zap.String("path", path), zap.Int("rows", len(rows)))
	}

	return total, nil
}

func readParquet(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from this run's own staging output
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrorTypeNotFound, "file not found: "+path)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read staged file")
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open parquet file")
	}
	defer fr.Close()

	pool := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create arrow reader")
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read arrow table")
	}
	defer table.Release()

	return tableToRows(table)
}

func tableToRows(table arrow.Table) ([]map[string]interface{}, error) {
	schema := table.Schema()
	numRows := int(table.NumRows())
	rows := make([]map[string]interface{}, numRows)
	for i := range rows {
		rows[i] = make(map[string]interface{}, schema.NumFields())
	}

	for colIdx := 0; colIdx < int(table.NumCols()); colIdx++ {
		field := schema.Field(colIdx)
		column := table.Column(colIdx)

		rowOffset := 0
		for _, chunk := range column.Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				rows[rowOffset+i][field.Name] = arrowValue(chunk, i)
			}
			rowOffset += chunk.Len()
		}
	}

	return rows, nil
}

func insertRows(ctx context.Context, db DB, schema, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	dialect := db.Dialect()
	qualified := qualify(dialect, schema, table)

	columns := columnOrder(rows)
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = dialect.QuoteIdentifier(c)
	}

	for _, row := range rows {
		placeholders := make([]string, len(columns))
		args := make([]interface{}, len(columns))
		for i, col := range columns {
			placeholders[i] = dialect.Placeholder(i + 1)
			args[i] = row[col]
		}

		insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			qualified, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

		if err := db.Exec(ctx, insertSQL, args...); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "failed to insert row")
		}
	}

	return nil
}

// columnOrder returns a deduplicated column list spanning every row. It is
// computed once per file, so each INSERT statement for that file targets
// the same columns.
func columnOrder(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	return columns
}
