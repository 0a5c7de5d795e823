// Package staging materializes connector fetch results as immutable
// columnar files at a deterministic partition path, the boundary between
// extract and load.
package staging

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"go.uber.org/zap"
)

// Write materializes result's items under lakeRoot and returns the paths
// written, in creation order. KindPreStaged items (PreStagedPath set by
// the connector itself) pass through unchanged. A failed or empty result
// yields no paths.
func Write(result *model.IngestionResult, lakeRoot, sourceName string) ([]string, error) {
	if result == nil || !result.Success || len(result.Items) == 0 {
		return nil, nil
	}

	safeSource := safeName(sourceName)
	var paths []string

	for _, item := range result.Items {
		if item.Kind == model.KindPreStaged {
			if item.PreStagedPath != "" {
				paths = append(paths, item.PreStagedPath)
			}
			continue
		}

		rows := payloadToRows(item)
		if len(rows) == 0 {
			continue
		}

		now := time.Now().UTC()
		ingestedAt := now.Format(time.RFC3339Nano)
		for _, row := range rows {
			row["_ingested_at"] = ingestedAt
		}

		partitionDir := filepath.Join(lakeRoot, result.Protocol, sourceName, now.Format("2006-01-02"))
		timestamp := fmt.Sprintf("%s%06dZ", now.Format("20060102T150405"), now.Nanosecond()/1000)
		filename := fmt.Sprintf("%s_%s.parquet", safeSource, timestamp)
		targetPath := filepath.Join(partitionDir, filename)

		if err := writeParquetFile(targetPath, rows); err != nil {
			return paths, errors.Wrap(err, errors.ErrorTypeInternal, "failed to write staged file")
		}

		paths = append(paths, targetPath)
		logger.Get().Info("staged file written",
			zap.String("protocol", result.Protocol),
			zap.String("source", sourceName),
			zap.Int("rows", len(rows)),
			zap.String("path", targetPath))
	}

	return paths, nil
}

// safeName replaces path separators and dots so a source name is always
// safe to embed in a filename.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}

// payloadToRows flattens one IngestedItem into its row sequence per §3's
// tagged variant: a Row becomes one row, Rows becomes N rows, and a Scalar
// becomes a single row with a synthetic "payload" field.
func payloadToRows(item model.IngestedItem) []map[string]interface{} {
	switch item.Kind {
	case model.KindRow:
		if item.Row == nil {
			return nil
		}
		return []map[string]interface{}{cloneRow(item.Row)}
	case model.KindRows:
		rows := make([]map[string]interface{}, 0, len(item.Rows))
		for _, r := range item.Rows {
			rows = append(rows, cloneRow(r))
		}
		return rows
	case model.KindScalar:
		if item.Scalar == nil {
			return nil
		}
		return []map[string]interface{}{{"payload": item.Scalar}}
	default:
		return nil
	}
}

func cloneRow(row map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		clone[k] = v
	}
	return clone
}
