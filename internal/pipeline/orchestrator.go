// Package pipeline implements the run-id state machine that drives a
// single pipeline execution from connect through audit.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"github.com/ajitpratap0/warehouse-etl/pkg/observability"
	"github.com/ajitpratap0/warehouse-etl/pkg/staging"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

// State names the orchestrator's run-id state machine steps.
type State string

const (
	StateInit        State = "init"
	StateConnecting  State = "connecting"
	StateFetching    State = "fetching"
	StateStaging     State = "staging"
	StateLoading     State = "loading"
	StateDoneSuccess State = "done_success"
	StateDoneFailure State = "done_failure"
)

// RunOutcome is the result of one orchestrator run, returned to the CLI and
// printed as JSON.
type RunOutcome struct {
	RunID           string  `json:"run_id"`
	Status          string  `json:"status"`
	RowsLoaded      int     `json:"rows_loaded"`
	ParquetFiles    int     `json:"parquet_files"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Params groups everything one Run call needs.
type Params struct {
	ConnectorConfig map[string]interface{}
	Query           string
	SourceName      string
	TargetTable     string
	LakeRoot        string
	DW              warehouse.DB
	Schema          string
	PipelineName    string
	Metrics         *observability.Metrics
}

// Run executes the extract-stage-load-audit sequence described by Params
// and returns its outcome. Errors from connecting, fetching, staging and
// loading are returned after a failure audit row has been written
// (best-effort; a failure writing the audit row is logged, not substituted
// for the original error). Errors ensuring the audit table, creating the
// connector, or writing the success audit row are returned without a
// failure audit row.
func Run(ctx context.Context, p Params) (*RunOutcome, error) {
	runID := uuid.New().String()
	startedAt := time.Now().UTC()
	protocol, _ := p.ConnectorConfig["protocol"].(string)
	if protocol == "" {
		protocol = "unknown"
	}

	log := logger.Get().With(zap.String("run_id", runID), zap.String("pipeline", p.PipelineName))
	log.Info("run started", zap.String("state", string(StateInit)))

	if err := warehouse.EnsureAuditTable(ctx, p.DW); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to ensure audit table")
	}

	outcome, err := runInner(ctx, p, runID, protocol, startedAt, log)

	status := "success"
	if err != nil || (outcome != nil && outcome.Status == "failure") {
		status = "failure"
	}
	if p.Metrics != nil {
		p.Metrics.ObserveRun(p.PipelineName, status, time.Since(startedAt))
	}

	return outcome, err
}

func runInner(ctx context.Context, p Params, runID, protocol string, startedAt time.Time, log *zap.Logger) (*RunOutcome, error) {
	log.Info("connecting", zap.String("state", string(StateConnecting)))
	connCfg := p.ConnectorConfig
	if connCfg == nil {
		connCfg = map[string]interface{}{}
	}
	connCfg["source_name"] = p.SourceName
	conn, err := registry.Create(protocol, connCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create connector")
	}

	if err := conn.Connect(ctx); err != nil {
		failErr := errors.Wrap(err, errors.ErrorTypeConnection, "connect failed")
		return writeFailureAndReturn(ctx, p, runID, protocol, startedAt, failErr, log)
	}

	log.Info("fetching", zap.String("state", string(StateFetching)))
	result, fetchErr := conn.Fetch(ctx, p.Query)
	closeErr := conn.Close()
	if closeErr != nil {
		log.Warn("connector close failed", zap.Error(closeErr))
	}

	if fetchErr != nil {
		return writeFailureAndReturn(ctx, p, runID, protocol, startedAt, fetchErr, log)
	}

	if !result.Success {
		errMsg := fmt.Sprintf("%v", result.Metadata["error"])
		finishedAt := time.Now().UTC()
		if auditErr := writeAudit(ctx, p, runID, protocol, startedAt, finishedAt, "failure", 0, 0, errMsg); auditErr != nil {
			log.Error("failed to write failure audit", zap.Error(auditErr))
		}
		return &RunOutcome{RunID: runID, Status: "failure", Error: errMsg}, nil
	}

	log.Info("staging", zap.String("state", string(StateStaging)))
	paths, stageErr := staging.Write(result, p.LakeRoot, p.SourceName)
	if stageErr != nil {
		return writeFailureAndReturn(ctx, p, runID, protocol, startedAt, stageErr, log)
	}

	log.Info("loading", zap.String("state", string(StateLoading)))
	rowsLoaded, loadErr := warehouse.Load(ctx, p.DW, p.Schema, p.TargetTable, paths)
	if loadErr != nil {
		return writeFailureAndReturn(ctx, p, runID, protocol, startedAt, loadErr, log)
	}

	finishedAt := time.Now().UTC()
	if auditErr := writeAudit(ctx, p, runID, protocol, startedAt, finishedAt, "success", rowsLoaded, len(paths), ""); auditErr != nil {
		return nil, errors.Wrap(auditErr, errors.ErrorTypeInternal, "failed to write success audit")
	}

	log.Info("run finished", zap.String("state", string(StateDoneSuccess)), zap.Int("rows_loaded", rowsLoaded))

	return &RunOutcome{
		RunID:           runID,
		Status:          "success",
		RowsLoaded:      rowsLoaded,
		ParquetFiles:    len(paths),
		DurationSeconds: finishedAt.Sub(startedAt).Seconds(),
	}, nil
}

func writeFailureAndReturn(ctx context.Context, p Params, runID, protocol string, startedAt time.Time, cause error, log *zap.Logger) (*RunOutcome, error) {
	finishedAt := time.Now().UTC()
	if auditErr := writeAudit(ctx, p, runID, protocol, startedAt, finishedAt, "failure", 0, 0, cause.Error()); auditErr != nil {
		log.Error("failed to write failure audit", zap.Error(auditErr))
	}
	log.Error("run failed", zap.String("state", string(StateDoneFailure)), zap.Error(cause))
	return nil, cause
}

func writeAudit(ctx context.Context, p Params, runID, protocol string, startedAt, finishedAt time.Time, status string, rowsLoaded, parquetFiles int, errMsg string) error {
	return warehouse.WriteAuditRecord(ctx, p.DW, warehouse.AuditRecord{
		RunID:        runID,
		PipelineName: p.PipelineName,
		SourceName:   p.SourceName,
		Protocol:     protocol,
		TargetTable:  p.TargetTable,
		Status:       status,
		RowsLoaded:   rowsLoaded,
		ParquetFiles: parquetFiles,
		ErrorMessage: errMsg,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	})
}
