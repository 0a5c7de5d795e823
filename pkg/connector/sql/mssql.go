package sql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

func init() {
	_ = registry.Register("mssql", newMSSQLConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "mssql",
		Description:  "SQL Server extraction via database/sql",
		Capabilities: []string{"fetch", "incremental"},
	})
}

// MSSQLConnector fetches rows from a SQL Server table.
type MSSQLConnector struct {
	*base.BaseConnector
	mu     sync.Mutex
	cfg    map[string]interface{}
	db     *sql.DB
	opened bool
}

func newMSSQLConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "database"); err != nil {
		return nil, err
	}
	return &MSSQLConnector{BaseConnector: base.NewBaseConnector("mssql", "1.0.0"), cfg: cfg}, nil
}

func mssqlDSN(cfg map[string]interface{}) string {
	host := optionalString(cfg, "host", "127.0.0.1")
	port := optionalInt(cfg, "port", 1433)
	user := optionalString(cfg, "user", "sa")
	pass := optionalString(cfg, "password", "")
	db := optionalString(cfg, "database", "")
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s", user, pass, host, port, db)
}

// Connect opens (or reuses) a connection pool for this connection's
// normalized config.
func (c *MSSQLConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateEngine("mssql", c.cfg, true, func() (cache.Closer, error) {
		db, err := sql.Open("sqlserver", mssqlDSN(c.cfg))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open mssql connection")
		}
		applyPoolSettings(db, defaultPoolSettings())
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mssql ping failed")
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
func (c *MSSQLConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	opened, db := c.opened, c.db
	c.mu.Unlock()

	if !opened {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	return rowsToResult(ctx, "mssql", db, query, c.cfg, "@p1", "@p2")
}

// Close releases this connector's reference to the cached pool.
func (c *MSSQLConnector) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// DWHandle exposes this connection's pool as a warehouse.DB, used by
// test-connection when the target under test is this engine itself.
func (c *MSSQLConnector) DWHandle() warehouse.DB {
	return warehouse.NewSQLDB(c.db, warehouse.MSSQLDialect{})
}
