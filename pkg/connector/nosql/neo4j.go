package nosql

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("neo4j", newNeo4jConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "neo4j",
		Description:  "Neo4j Cypher passthrough via neo4j-go-driver",
		Capabilities: []string{"fetch"},
	})
}

// Neo4jConnector runs a Cypher statement against a configured database.
type Neo4jConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	driver    neo4j.DriverWithContext
	database  string
	connected bool
}

func newNeo4jConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "uri"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "username"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "password"); err != nil {
		return nil, err
	}
	return &Neo4jConnector{BaseConnector: base.NewBaseConnector("neo4j", "1.0.0"), cfg: cfg}, nil
}

type neo4jCloser struct {
	driver neo4j.DriverWithContext
}

func (n neo4jCloser) Close() error {
	return n.driver.Close(context.Background())
}

// Connect opens (or reuses) a Neo4j driver for this connection's
// normalized config.
func (c *Neo4jConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateSession("neo4j", c.cfg, true, func() (cache.Closer, error) {
		uri, _ := c.cfg["uri"].(string)
		user, _ := c.cfg["username"].(string)
		pass, _ := c.cfg["password"].(string)

		driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create neo4j driver")
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			_ = driver.Close(ctx)
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "neo4j connectivity check failed")
		}
		return neo4jCloser{driver}, nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.driver = handle.(neo4jCloser).driver
	c.database = optionalString(c.cfg, "database", "neo4j")
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch runs query as a Cypher statement and returns every record as a row
// item.
func (c *Neo4jConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, driver, database := c.connected, c.driver, c.database
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return &model.IngestionResult{
			Protocol: "neo4j",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error()},
		}, nil
	}

	var items []model.IngestedItem
	for result.Next(ctx) {
		record := result.Record()
		row := make(map[string]interface{}, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		items = append(items, model.IngestedItem{Kind: model.KindRow, Row: row})
	}
	if err := result.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "result iteration failed")
	}

	return &model.IngestionResult{
		Protocol:  "neo4j",
		Success:   true,
		Items:     items,
		Metadata:  map[string]interface{}{"row_count": len(items)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close releases this connector's reference to the cached driver.
func (c *Neo4jConnector) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}
