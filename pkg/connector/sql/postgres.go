package sql

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

func init() {
	_ = registry.Register("postgres", newPostgresConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "postgres",
		Description:  "PostgreSQL extraction via pgx's native pool",
		Capabilities: []string{"fetch", "incremental"},
	})
}

// PostgresConnector fetches rows from a Postgres table via pgxpool, rather
// than database/sql, to use pgx's native type decoding.
type PostgresConnector struct {
	*base.BaseConnector
	mu     sync.Mutex
	cfg    map[string]interface{}
	pool   *pgxpool.Pool
	opened bool
}

func newPostgresConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "database"); err != nil {
		return nil, err
	}
	return &PostgresConnector{BaseConnector: base.NewBaseConnector("postgres", "1.0.0"), cfg: cfg}, nil
}

func postgresDSN(cfg map[string]interface{}) string {
	host := optionalString(cfg, "host", "127.0.0.1")
	port := optionalInt(cfg, "port", 5432)
	user := optionalString(cfg, "user", "postgres")
	pass := optionalString(cfg, "password", "")
	db := optionalString(cfg, "database", "")
	sslmode := optionalString(cfg, "sslmode", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", user, pass, host, port, db, sslmode)
}

type pgxCloser struct{ pool *pgxpool.Pool }

func (p pgxCloser) Close() error {
	p.pool.Close()
	return nil
}

// Connect opens (or reuses) a pgx pool for this connection's normalized
// config.
func (c *PostgresConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateEngine("postgres", c.cfg, true, func() (cache.Closer, error) {
		poolCfg, err := pgxpool.ParseConfig(postgresDSN(c.cfg))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres config")
		}
		poolCfg.MaxConns = 10
		poolCfg.HealthCheckPeriod = time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open postgres pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "postgres ping failed")
		}
		return pgxCloser{pool}, nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pool = handle.(pgxCloser).pool
	c.opened = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch runs query and returns every matched row as one batch item.
func (c *PostgresConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	opened, pool := c.opened, c.pool
	c.mu.Unlock()

	if !opened {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	inc := parseIncrementalConfig(c.cfg)
	effectiveQuery := query
	var args []interface{}
	if inc.enabled {
		effectiveQuery = IncrementalQuery(inc.table, inc.watermarkCol, "$1", "$2")
		args = []interface{}{inc.lastWatermark, inc.batchSize}
	}

	rows, err := pool.Query(ctx, effectiveQuery, args...)
	if err != nil {
		return &model.IngestionResult{
			Protocol: "postgres",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error()},
		}, nil
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var mapped []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}
		row := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		mapped = append(mapped, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "row iteration failed")
	}

	metadata := map[string]interface{}{"row_count": len(mapped)}
	if inc.enabled {
		metadata["new_watermark"] = NextWatermark(mapped, inc.watermarkCol, inc.lastWatermark)
	}

	return &model.IngestionResult{
		Protocol:  "postgres",
		Success:   true,
		Items:     []model.IngestedItem{{Kind: model.KindRows, Rows: mapped}},
		Metadata:  metadata,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close releases this connector's reference to the cached pool.
func (c *PostgresConnector) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// DWHandle exposes this connection's pool as a warehouse.DB.
func (c *PostgresConnector) DWHandle() warehouse.DB {
	return warehouse.NewPgxDB(c.pool)
}
