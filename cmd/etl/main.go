package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/warehouse-etl/internal/pipeline"
	"github.com/ajitpratap0/warehouse-etl/pkg/config"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"github.com/ajitpratap0/warehouse-etl/pkg/observability"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"

	// Import every connector family to register its protocols.
	_ "github.com/ajitpratap0/warehouse-etl/pkg/connector/file"
	_ "github.com/ajitpratap0/warehouse-etl/pkg/connector/http"
	_ "github.com/ajitpratap0/warehouse-etl/pkg/connector/nosql"
	_ "github.com/ajitpratap0/warehouse-etl/pkg/connector/sql"
	_ "github.com/ajitpratap0/warehouse-etl/pkg/connector/stream"
)

var version = "0.1.0"

// dwHandleProvider is implemented by every SQL-family connector, exposing
// its underlying pool as a warehouse.DB so the DW can be addressed
// directly by the orchestrator instead of through Fetch.
type dwHandleProvider interface {
	DWHandle() warehouse.DB
}

func main() {
	_ = godotenv.Load()

	logLevel := strings.ToLower(os.Getenv("ETL_LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}
	_ = logger.Init(logger.Config{
		Level:    logLevel,
		Encoding: "json",
		// Keep stdout free for a command's JSON result; human-readable run
		// progress goes to stderr.
		OutputPaths: []string{"stderr"},
	})

	root := &cobra.Command{
		Use:   "etl",
		Short: "Single-node extract, stage, and load pipeline runner",
	}

	root.AddCommand(newVersionCmd(), newListCmd(), newRunCmd(), newTestConnectionCmd())
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build and runtime version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("etl v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered connector protocols",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Registered connector protocols:")
			for _, info := range registry.Catalogue() {
				fmt.Printf("  - %-10s %s\n", info.Protocol, info.Description)
			}
		},
	}
}

func newRunCmd() *cobra.Command {
	var configPath, query, sourceName, table, lakeRoot, schema, pipelineName string
	var enableMetrics bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one extract-stage-load pipeline execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), runArgs{
				configPath:    configPath,
				query:         query,
				sourceName:    sourceName,
				table:         table,
				lakeRoot:      lakeRoot,
				schema:        schema,
				pipelineName:  pipelineName,
				enableMetrics: enableMetrics,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the source connector's JSON or YAML config file (required)")
	cmd.Flags().StringVar(&query, "query", "", "Protocol-specific query: a SQL statement, HTTP path, remote file or directory path, or topic/queue name (required)")
	cmd.Flags().StringVar(&sourceName, "source", "", "Logical source name, used for staging partitions and audit (required)")
	cmd.Flags().StringVar(&table, "table", "", "Target warehouse table (required)")
	cmd.Flags().StringVar(&lakeRoot, "lake", "./lake", "Local staging lake root directory")
	cmd.Flags().StringVar(&schema, "schema", "", "Target warehouse schema (optional, dialect default when empty)")
	cmd.Flags().StringVar(&pipelineName, "pipeline", "default", "Pipeline name recorded in metrics and audit")
	cmd.Flags().BoolVar(&enableMetrics, "enable-metrics", false, "Record etl_runs_total/etl_run_duration_seconds around this run")
	for _, name := range []string{"config", "query", "source", "table"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

type runArgs struct {
	configPath, query, sourceName, table, lakeRoot, schema, pipelineName string
	enableMetrics                                                        bool
}

func runPipeline(ctx context.Context, args runArgs) error {
	log := logger.Get().With(zap.String("component", "cli"))

	connCfg, err := loadSourceConfig(args.configPath)
	if err != nil {
		return err
	}
	protocol, _ := connCfg["protocol"].(string)

	dwCfg, err := loadDWConfig()
	if err != nil {
		return err
	}
	dw, closeDW, err := openWarehouse(ctx, dwCfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDW(); cerr != nil {
			log.Warn("failed to close warehouse connection", zap.Error(cerr))
		}
	}()

	var metrics *observability.Metrics
	if args.enableMetrics {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	outcome, runErr := pipeline.Run(ctx, pipeline.Params{
		ConnectorConfig: connCfg,
		Query:           args.query,
		SourceName:      args.sourceName,
		TargetTable:     args.table,
		LakeRoot:        args.lakeRoot,
		DW:              dw,
		Schema:          args.schema,
		PipelineName:    args.pipelineName,
		Metrics:         metrics,
	})

	if outcome != nil {
		encoded, _ := json.Marshal(outcome)
		fmt.Println(string(encoded))
	}

	if runErr != nil {
		log.Error("run failed", zap.String("protocol", protocol), zap.Error(runErr))
		return runErr
	}
	if outcome.Status == "failure" {
		log.Error("run completed with failure status", zap.String("run_id", outcome.RunID), zap.String("error", outcome.Error))
		return errors.New(errors.ErrorTypeData, "run "+outcome.RunID+" failed: "+outcome.Error)
	}

	log.Info("run completed", zap.String("run_id", outcome.RunID), zap.String("status", outcome.Status))
	return nil
}

func newTestConnectionCmd() *cobra.Command {
	var configPath, source string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Verify a connector (or the warehouse) can connect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return testConnection(cmd.Context(), configPath, source == "dw")
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a connector config file to test")
	cmd.Flags().StringVar(&source, "source", "", "Pass \"dw\" to test the warehouse connection instead of --config")

	return cmd
}

type testConnectionResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

func testConnection(ctx context.Context, configPath string, testDW bool) error {
	var result testConnectionResult

	if testDW {
		dwCfg, err := loadDWConfig()
		if err != nil {
			result = testConnectionResult{OK: false, Detail: err.Error()}
		} else {
			_, closeDW, err := openWarehouse(ctx, dwCfg)
			if err != nil {
				result = testConnectionResult{OK: false, Detail: err.Error()}
			} else {
				_ = closeDW()
				result = testConnectionResult{OK: true, Detail: "dw connection ok"}
			}
		}
	} else {
		if configPath == "" {
			return errors.New(errors.ErrorTypeValidation, "one of --source dw or --config <path> is required")
		}
		cfg, err := loadSourceConfig(configPath)
		if err != nil {
			result = testConnectionResult{OK: false, Detail: err.Error()}
		} else {
			protocol, _ := cfg["protocol"].(string)
			conn, err := registry.Create(protocol, cfg)
			if err != nil {
				result = testConnectionResult{OK: false, Detail: err.Error()}
			} else if err := conn.Connect(ctx); err != nil {
				result = testConnectionResult{OK: false, Detail: err.Error()}
			} else {
				_ = conn.Close()
				result = testConnectionResult{OK: true, Detail: fmt.Sprintf("%s connection ok", protocol)}
			}
		}
	}

	encoded, _ := json.Marshal(result)
	fmt.Println(string(encoded))
	if !result.OK {
		return errors.New(errors.ErrorTypeConnection, result.Detail)
	}
	return nil
}

// loadSourceConfig reads a connector config file, requiring a top-level
// protocol key, then layers in any PROTOCOL_-prefixed environment
// variables on top of the file's values.
func loadSourceConfig(path string) (map[string]interface{}, error) {
	peek, err := config.Load(nil, path, "", []string{"protocol"}, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load connector config")
	}
	protocol, _ := peek["protocol"].(string)

	cfg, err := config.Load(nil, path, strings.ToUpper(protocol), []string{"protocol"}, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load connector config")
	}
	return cfg, nil
}

// loadDWConfig builds the warehouse connector's config entirely from
// DW_-prefixed environment variables, per the documented CLI contract.
func loadDWConfig() (map[string]interface{}, error) {
	cfg, err := config.Load(nil, "", "DW", []string{"protocol"}, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load DW config from DW_ environment variables")
	}
	return cfg, nil
}

// openWarehouse creates and connects a SQL-family connector for dwCfg's
// protocol and returns its warehouse.DB handle plus a close function.
func openWarehouse(ctx context.Context, dwCfg map[string]interface{}) (warehouse.DB, func() error, error) {
	protocol, _ := dwCfg["protocol"].(string)

	conn, err := registry.Create(protocol, dwCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, nil, err
	}

	provider, ok := conn.(dwHandleProvider)
	if !ok {
		_ = conn.Close()
		return nil, nil, errors.New(errors.ErrorTypeConfig, "protocol "+protocol+" cannot serve as a warehouse destination")
	}

	return provider.DWHandle(), conn.Close, nil
}
