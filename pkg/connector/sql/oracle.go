package sql

import (
	"context"
	"database/sql"
	"sync"

	goora "github.com/sijms/go-ora/v2"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

func init() {
	_ = registry.Register("oracle", newOracleConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "oracle",
		Description:  "Oracle extraction via database/sql",
		Capabilities: []string{"fetch", "incremental"},
	})
}

// OracleConnector fetches rows from an Oracle table.
type OracleConnector struct {
	*base.BaseConnector
	mu     sync.Mutex
	cfg    map[string]interface{}
	db     *sql.DB
	opened bool
}

func newOracleConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "service"); err != nil {
		return nil, err
	}
	return &OracleConnector{BaseConnector: base.NewBaseConnector("oracle", "1.0.0"), cfg: cfg}, nil
}

func oracleDSN(cfg map[string]interface{}) string {
	host := optionalString(cfg, "host", "127.0.0.1")
	port := optionalInt(cfg, "port", 1521)
	user := optionalString(cfg, "user", "")
	pass := optionalString(cfg, "password", "")
	service := optionalString(cfg, "service", "")
	return goora.BuildUrl(host, port, service, user, pass, nil)
}

// Connect opens (or reuses) a connection pool for this connection's
// normalized config.
func (c *OracleConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateEngine("oracle", c.cfg, true, func() (cache.Closer, error) {
		db, err := sql.Open("oracle", oracleDSN(c.cfg))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open oracle connection")
		}
		applyPoolSettings(db, defaultPoolSettings())
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "oracle ping failed")
		}
		return sqlCloser{db}, nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.db = handle.(sqlCloser).db
	c.opened = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch runs query and returns every matched row as one batch item.
func (c *OracleConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	opened, db := c.opened, c.db
	c.mu.Unlock()

	if !opened {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	return rowsToResult(ctx, "oracle", db, query, c.cfg, ":1", ":2")
}

// Close releases this connector's reference to the cached pool.
func (c *OracleConnector) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// DWHandle exposes this connection's pool as a warehouse.DB.
func (c *OracleConnector) DWHandle() warehouse.DB {
	return warehouse.NewSQLDB(c.db, warehouse.OracleDialect{})
}
