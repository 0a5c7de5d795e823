// Package sql implements the SQL connector family (Postgres, MySQL, MSSQL,
// Oracle, SQLite) sharing one connect/fetch/incremental-extract shape over
// database/sql plus a dialect-specific DSN builder and driver import.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

// poolSettings are the database/sql connection pool knobs shared by every
// dialect that goes through database/sql (all but Postgres, which is
// configured via pgxpool directly).
type poolSettings struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

func defaultPoolSettings() poolSettings {
	return poolSettings{maxOpenConns: 10, maxIdleConns: 5, connMaxLifetime: 30 * time.Minute}
}

func applyPoolSettings(db *sql.DB, s poolSettings) {
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetConnMaxLifetime(s.connMaxLifetime)
}

func requireString(cfg map[string]interface{}, key string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		return "", errors.New(errors.ErrorTypeConfig, "missing required key: "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.New(errors.ErrorTypeConfig, "missing required key: "+key)
	}
	return s, nil
}

func optionalString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalInt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// rowsToResult executes query (or, when cfg carries a watermark_column, the
// incremental watermark query built from cfg instead of query) and wraps the
// result rows as a single IngestedItem batch, matching §4.4's envelope shape.
func rowsToResult(ctx context.Context, protocol string, db *sql.DB, query string, cfg map[string]interface{}, placeholder1, placeholder2 string) (*model.IngestionResult, error) {
	inc := parseIncrementalConfig(cfg)
	effectiveQuery := query
	if inc.enabled {
		effectiveQuery = IncrementalQuery(inc.table, inc.watermarkCol, placeholder1, placeholder2)
	}

	var args []interface{}
	if inc.enabled {
		args = []interface{}{inc.lastWatermark, inc.batchSize}
	}

	rows, err := db.QueryContext(ctx, effectiveQuery, args...)
	if err != nil {
		return &model.IngestionResult{
			Protocol: protocol,
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error()},
		}, nil
	}
	defer rows.Close()

	mapped, err := scanToMaps(rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan rows")
	}

	metadata := map[string]interface{}{"row_count": len(mapped)}
	if inc.enabled {
		metadata["new_watermark"] = NextWatermark(mapped, inc.watermarkCol, inc.lastWatermark)
	}

	return &model.IngestionResult{
		Protocol:  protocol,
		Success:   true,
		Items:     []model.IngestedItem{{Kind: model.KindRows, Rows: mapped}},
		Metadata:  metadata,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func scanToMaps(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanned(values[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// normalizeScanned converts driver-specific byte-slice representations of
// text columns (common with MySQL/SQLite drivers) into plain strings so
// downstream staging/schema inference sees a consistent Go type.
func normalizeScanned(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// IncrementalQuery builds the deterministic watermark query described in
// §4.4. It returns only the query; callers run it, then call NextWatermark
// on the resulting rows to compute the updated watermark.
func IncrementalQuery(table, watermarkCol, placeholder1, placeholder2 string) string {
	return fmt.Sprintf(
		"SELECT * FROM %s WHERE %s > %s ORDER BY %s ASC LIMIT %s",
		table, watermarkCol, placeholder1, watermarkCol, placeholder2,
	)
}

// NextWatermark returns the maximum value of watermarkCol across rows, or
// lastWatermark unchanged if rows is empty.
func NextWatermark(rows []map[string]interface{}, watermarkCol string, lastWatermark interface{}) interface{} {
	if len(rows) == 0 {
		return lastWatermark
	}

	max := lastWatermark
	for _, row := range rows {
		v := row[watermarkCol]
		if max == nil || compareValues(v, max) > 0 {
			max = v
		}
	}
	return max
}

func compareValues(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af > bf:
			return 1
		case af < bf:
			return -1
		default:
			return 0
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as > bs:
		return 1
	case as < bs:
		return -1
	default:
		return 0
	}
}

// incrementalConfig extracts the optional table/watermark_column/batch_size
// keys that switch Fetch from running the caller's literal query to
// generating the watermark query from §4.4. A connector config without a
// watermark_column runs in plain mode.
type incrementalConfig struct {
	table         string
	watermarkCol  string
	lastWatermark interface{}
	batchSize     int
	enabled       bool
}

func parseIncrementalConfig(cfg map[string]interface{}) incrementalConfig {
	watermarkCol, _ := cfg["watermark_column"].(string)
	if watermarkCol == "" {
		return incrementalConfig{}
	}
	return incrementalConfig{
		table:         optionalString(cfg, "table", ""),
		watermarkCol:  watermarkCol,
		lastWatermark: cfg["last_watermark"],
		batchSize:     optionalInt(cfg, "batch_size", 1000),
		enabled:       true,
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
