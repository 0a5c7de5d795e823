package staging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// writeParquetFile infers an Arrow schema from rows' observed keys and
// value types, then writes rows as a single Parquet row group at path,
// creating any missing partition directories. Every inferred field is
// nullable since a column absent from some rows is common (schema
// evolution across runs, sparse payloads). The file is written to a temp
// sibling and renamed into place, so a reader (or a stream connector's
// commit) never observes a partially written file at path.
func writeParquetFile(path string, rows []map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	schema := inferArrowSchema(rows)

	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	for _, row := range rows {
		for i, field := range schema.Fields() {
			appendValue(builder.Field(i), row[field.Name])
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	suffix, err := randomSuffix()
	if err != nil {
		return err
	}
	tmpPath := path + ".part-" + suffix

	f, err := os.Create(tmpPath) //nolint:gosec // G304: tmpPath is this run's own deterministic staging target
	if err != nil {
		return fmt.Errorf("failed to create staged file: %w", err)
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool))

	fw, err := pqarrow.NewFileWriter(schema, f, props, arrowProps)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if err := fw.WriteBuffered(record); err != nil {
		_ = fw.Close()
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := fw.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize staged file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename staged file into place: %w", err)
	}

	return nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate temp file suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// inferArrowSchema builds a stable field list from the union of keys across
// rows, ordered by first appearance, typed from the first non-nil value
// observed for each key.
func inferArrowSchema(rows []map[string]interface{}) *arrow.Schema {
	order := make([]string, 0)
	types := make(map[string]arrow.DataType)

	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if _, seen := types[k]; seen {
				continue
			}
			if row[k] == nil {
				continue
			}
			types[k] = arrowTypeFor(row[k])
			order = append(order, k)
		}
	}

	// Columns that never had a non-nil value anywhere default to string.
	for _, row := range rows {
		for k := range row {
			if _, seen := types[k]; !seen {
				types[k] = arrow.BinaryTypes.String
				order = append(order, k)
			}
		}
	}

	fields := make([]arrow.Field, len(order))
	for i, name := range order {
		fields[i] = arrow.Field{Name: name, Type: types[name], Nullable: true}
	}

	return arrow.NewSchema(fields, nil)
}

func arrowTypeFor(value interface{}) arrow.DataType {
	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return arrow.PrimitiveTypes.Int64
	case float32, float64:
		return arrow.PrimitiveTypes.Float64
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_ns
	case []byte:
		return arrow.BinaryTypes.Binary
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(builder array.Builder, value interface{}) {
	if value == nil {
		builder.AppendNull()
		return
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
		} else {
			b.AppendNull()
		}

	case *array.Int64Builder:
		switch v := value.(type) {
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		case int64:
			b.Append(v)
		case uint:
			b.Append(int64(v))
		case uint32:
			b.Append(int64(v))
		case uint64:
			b.Append(int64(v))
		default:
			b.AppendNull()
		}

	case *array.Float64Builder:
		switch v := value.(type) {
		case float32:
			b.Append(float64(v))
		case float64:
			b.Append(v)
		default:
			b.AppendNull()
		}

	case *array.TimestampBuilder:
		switch v := value.(type) {
		case time.Time:
			b.Append(arrow.Timestamp(v.UnixNano()))
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				b.Append(arrow.Timestamp(t.UnixNano()))
			} else {
				b.AppendNull()
			}
		default:
			b.AppendNull()
		}

	case *array.BinaryBuilder:
		switch v := value.(type) {
		case []byte:
			b.Append(v)
		case string:
			b.Append([]byte(v))
		default:
			b.AppendNull()
		}

	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}

	default:
		builder.AppendNull()
	}
}
