package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// AuditTable is the name of the published audit log table.
const AuditTable = "etl_audit_log"

// AuditRecord summarizes one terminated pipeline run.
type AuditRecord struct {
	RunID         string
	PipelineName  string
	SourceName    string
	Protocol      string
	TargetTable   string
	Status        string // "success" or "failure"
	RowsLoaded    int
	ParquetFiles  int
	ErrorMessage  string
	StartedAt     time.Time
	FinishedAt    time.Time
}

var auditColumns = []string{
	"run_id", "pipeline_name", "source_name", "protocol", "target_table",
	"status", "rows_loaded", "parquet_files", "error_message", "started_at", "finished_at",
}

// EnsureAuditTable creates the audit log table if it does not already exist.
func EnsureAuditTable(ctx context.Context, db DB) error {
	dialect := db.Dialect()
	qualified := dialect.QuoteIdentifier(AuditTable)

	defs := []string{
		dialect.QuoteIdentifier("run_id") + " TEXT",
		dialect.QuoteIdentifier("pipeline_name") + " TEXT",
		dialect.QuoteIdentifier("source_name") + " TEXT",
		dialect.QuoteIdentifier("protocol") + " TEXT",
		dialect.QuoteIdentifier("target_table") + " TEXT",
		dialect.QuoteIdentifier("status") + " TEXT",
		dialect.QuoteIdentifier("rows_loaded") + " BIGINT",
		dialect.QuoteIdentifier("parquet_files") + " BIGINT",
		dialect.QuoteIdentifier("error_message") + " TEXT",
		fmt.Sprintf("%s %s", dialect.QuoteIdentifier("started_at"), dialect.TimestampType()),
		fmt.Sprintf("%s %s", dialect.QuoteIdentifier("finished_at"), dialect.TimestampType()),
	}

	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified, strings.Join(defs, ", "))

	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to begin audit-table transaction")
	}
	if err := tx.Exec(ctx, createSQL); err != nil {
		_ = tx.Rollback(ctx)
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create audit table")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to commit audit-table transaction")
	}
	return nil
}

// WriteAuditRecord appends exactly one row to the audit log.
func WriteAuditRecord(ctx context.Context, db DB, record AuditRecord) error {
	dialect := db.Dialect()
	qualified := dialect.QuoteIdentifier(AuditTable)

	quotedCols := make([]string, len(auditColumns))
	placeholders := make([]string, len(auditColumns))
	for i, col := range auditColumns {
		quotedCols[i] = dialect.QuoteIdentifier(col)
		placeholders[i] = dialect.Placeholder(i + 1)
	}

	args := []interface{}{
		record.RunID, record.PipelineName, record.SourceName, record.Protocol, record.TargetTable,
		record.Status, record.RowsLoaded, record.ParquetFiles, record.ErrorMessage,
		record.StartedAt.UTC(), record.FinishedAt.UTC(),
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to begin audit-write transaction")
	}
	if err := tx.Exec(ctx, insertSQL, args...); err != nil {
		_ = tx.Rollback(ctx)
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write audit record")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to commit audit-write transaction")
	}

	logger.Get().Info("audit record written",
		zap.String("run_id", record.RunID),
		zap.String("status", record.Status))
	return nil
}
