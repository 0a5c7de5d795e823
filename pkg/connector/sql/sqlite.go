package sql

import (
	"context"
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/warehouse"
)

func init() {
	_ = registry.Register("sqlite", newSQLiteConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "sqlite",
		Description:  "SQLite extraction via the pure-Go modernc.org/sqlite driver",
		Capabilities: []string{"fetch", "incremental"},
	})
}

// SQLiteConnector fetches rows from a SQLite database file.
type SQLiteConnector struct {
	*base.BaseConnector
	mu     sync.Mutex
	cfg    map[string]interface{}
	db     *sql.DB
	opened bool
}

func newSQLiteConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "path"); err != nil {
		return nil, err
	}
	return &SQLiteConnector{BaseConnector: base.NewBaseConnector("sqlite", "1.0.0"), cfg: cfg}, nil
}

// Connect opens (or reuses) a connection pool for this connection's
// normalized config. SQLite pools are kept to a single connection since the
// driver serializes writes at the file level anyway.
func (c *SQLiteConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	path := optionalString(c.cfg, "path", "")

	handle, err := cache.GetOrCreateEngine("sqlite", c.cfg, true, func() (cache.Closer, error) {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open sqlite connection")
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "sqlite ping failed")
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
func (c *SQLiteConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	opened, db := c.opened, c.db
	c.mu.Unlock()

	if !opened {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	return rowsToResult(ctx, "sqlite", db, query, c.cfg, "?", "?")
}

// Close releases this connector's reference to the cached pool.
func (c *SQLiteConnector) Close() error {
	c.mu.Lock()
	c.opened = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// DWHandle exposes this connection's pool as a warehouse.DB.
func (c *SQLiteConnector) DWHandle() warehouse.DB {
	return warehouse.NewSQLDB(c.db, warehouse.SQLiteDialect{})
}
