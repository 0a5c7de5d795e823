package sql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

func init() {
	_ = registry.Register("mysql", newMySQLConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "mysql",
		Description:  "MySQL/MariaDB extraction via database/sql",
		Capabilities: []string{"fetch", "incremental"},
	})
}

// MySQLConnector fetches rows from a MySQL or MariaDB table.
type MySQLConnector struct {
	*base.BaseConnector
	mu     sync.Mutex
	cfg    map[string]interface{}
	db     *sql.DB
	opened bool
}

func newMySQLConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "database"); err != nil {
		return nil, err
	}
	return &MySQLConnector{BaseConnector: base.NewBaseConnector("mysql", "1.0.0"), cfg: cfg}, nil
}

func mysqlDSN(cfg map[string]interface{}) string {
	host := optionalString(cfg, "host", "127.0.0.1")
	port := optionalInt(cfg, "port", 3306)
	user := optionalString(cfg, "user", "root")
	pass := optionalString(cfg, "password", "")
	db := optionalString(cfg, "database", "")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", user, pass, host, port, db)
}

// Connect opens (or reuses, via the process-wide engine cache) a connection
// pool for this connection's normalized config.
func (c *MySQLConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateEngine("mysql", c.cfg, true, func() (cache.Closer, error) {
		db, err := sql.Open("mysql", mysqlDSN(c.cfg))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open mysql connection")
		}
		applyPoolSettings(db, defaultPoolSettings())
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mysql ping failed")
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
func (c *MySQLConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	opened, db := c.opened, c.db
	c.mu.Unlock()

	if !opened {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	return rowsToResult(ctx, "mysql", db, query, c.cfg, "?", "?")
}

// Close releases this connector's reference; the pooled connection itself
// stays cached for reuse by subsequent runs against the same target.
func (c *MySQLConnector) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// DWHandle adapts this connector's pooled connection for use as a warehouse
// destination target (test-connection and local smoke testing against the
// source engine itself).
func (c *MySQLConnector) DWHandle() warehouse.DB {
	return warehouse.NewSQLDB(c.db, warehouse.MySQLDialect{})
}

// sqlCloser adapts *sql.DB to cache.Closer. Shared by every database/sql-based
// connector in this package.
type sqlCloser struct{ db *sql.DB }

func (s sqlCloser) Close() error { return s.db.Close() }
