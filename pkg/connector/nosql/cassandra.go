package nosql

import (
	"context"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("cassandra", newCassandraConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "cassandra",
		Description:  "Cassandra CQL passthrough via gocql",
		Capabilities: []string{"fetch"},
	})
}

// CassandraConnector runs a CQL statement against a keyspace session.
type CassandraConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	session   *gocql.Session
	connected bool
}

func newCassandraConnector(cfg map[string]interface{}) (core.Connector, error) {
	if len(stringSlice(cfg, "hosts")) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required key: hosts")
	}
	if _, err := requireString(cfg, "keyspace"); err != nil {
		return nil, err
	}
	return &CassandraConnector{BaseConnector: base.NewBaseConnector("cassandra", "1.0.0"), cfg: cfg}, nil
}

type cassandraCloser struct{ session *gocql.Session }

func (c cassandraCloser) Close() error {
	c.session.Close()
	return nil
}

// Connect opens (or reuses, via the session cache keyed per goroutine) a
// Cassandra session against the configured keyspace.
func (c *CassandraConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateSession("cassandra", c.cfg, true, func() (cache.Closer, error) {
		hosts := stringSlice(c.cfg, "hosts")
		keyspace, _ := c.cfg["keyspace"].(string)

		clusterCfg := gocql.NewCluster(hosts...)
		clusterCfg.Port = optionalInt(c.cfg, "port", 9042)
		clusterCfg.Keyspace = keyspace
		clusterCfg.Timeout = 10 * time.Second

		if user := optionalString(c.cfg, "username", ""); user != "" {
			clusterCfg.Authenticator = gocql.PasswordAuthenticator{
				Username: user,
				Password: optionalString(c.cfg, "password", ""),
			}
		}

		session, err := clusterCfg.CreateSession()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create cassandra session")
		}
		return cassandraCloser{session}, nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = handle.(cassandraCloser).session
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch runs query as a CQL statement and returns every row as a row item.
func (c *CassandraConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, session := c.connected, c.session
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	iter := session.Query(query).WithContext(ctx).Iter()
	columns := iter.Columns()

	var items []model.IngestedItem
	row := make(map[string]interface{}, len(columns))
	for {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if !iter.Scan(pointers...) {
			break
		}

		row = make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		items = append(items, model.IngestedItem{Kind: model.KindRow, Row: row})
	}

	if err := iter.Close(); err != nil {
		return &model.IngestionResult{
			Protocol: "cassandra",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error()},
		}, nil
	}

	return &model.IngestionResult{
		Protocol:  "cassandra",
		Success:   true,
		Items:     items,
		Metadata:  map[string]interface{}{"row_count": len(items)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close releases this connector's reference to the cached session.
func (c *CassandraConnector) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}
