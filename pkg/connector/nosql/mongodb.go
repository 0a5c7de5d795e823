// Package nosql implements the NoSQL connector family (MongoDB, Cassandra,
// Neo4j). A query is interpreted per engine: a collection name for MongoDB,
// a CQL statement for Cassandra, a Cypher statement for Neo4j.
package nosql

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/warehouse-etl/pkg/cache"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("mongodb", newMongoDBConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "mongodb",
		Description:  "MongoDB collection scan via go.mongodb.org/mongo-driver",
		Capabilities: []string{"fetch"},
	})
}

// MongoDBConnector fetches every document from a named collection.
type MongoDBConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	client    *mongo.Client
	database  *mongo.Database
	connected bool
}

func newMongoDBConnector(cfg map[string]interface{}) (core.Connector, error) {
	if _, err := requireString(cfg, "host"); err != nil {
		return nil, err
	}
	if _, err := requireString(cfg, "database"); err != nil {
		return nil, err
	}
	return &MongoDBConnector{BaseConnector: base.NewBaseConnector("mongodb", "1.0.0"), cfg: cfg}, nil
}

type mongoCloser struct{ client *mongo.Client }

func (m mongoCloser) Close() error {
	return m.client.Disconnect(context.Background())
}

// Connect opens (or reuses, via the engine cache) a MongoDB client for this
// connection's normalized config.
func (c *MongoDBConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	handle, err := cache.GetOrCreateEngine("mongodb", c.cfg, true, func() (cache.Closer, error) {
		uri := mongoURI(c.cfg)
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mongodb ping failed")
		}
		return mongoCloser{client}, nil
	})
	if err != nil {
		return err
	}

	client := handle.(mongoCloser).client
	database, _ := c.cfg["database"].(string)

	c.mu.Lock()
	c.client = client
	c.database = client.Database(database)
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

func mongoURI(cfg map[string]interface{}) string {
	host := optionalString(cfg, "host", "127.0.0.1")
	port := optionalInt(cfg, "port", 27017)
	user := optionalString(cfg, "username", "")
	pass := optionalString(cfg, "password", "")
	authSource := optionalString(cfg, "auth_source", "")

	if user == "" {
		return fmt.Sprintf("mongodb://%s:%d", host, port)
	}
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", user, pass, host, port)
	if authSource != "" {
		uri += "/?authSource=" + authSource
	}
	return uri
}

// Fetch scans the collection named by query and returns every document as
// a row item.
func (c *MongoDBConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, database := c.connected, c.database
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	if query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "empty query: expected collection name")
	}

	cursor, err := database.Collection(query).Find(ctx, bson.D{})
	if err != nil {
		return &model.IngestionResult{
			Protocol: "mongodb",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error(), "collection": query},
		}, nil
	}
	defer cursor.Close(ctx)

	var items []model.IngestedItem
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode document")
		}
		items = append(items, model.IngestedItem{Kind: model.KindRow, Row: toSerializable(doc).(map[string]interface{})})
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cursor iteration failed")
	}

	return &model.IngestionResult{
		Protocol:  "mongodb",
		Success:   true,
		Items:     items,
		Metadata:  map[string]interface{}{"collection": query, "fetched_documents": len(items)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close releases this connector's reference to the cached client.
func (c *MongoDBConnector) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.BaseConnector.Close()
}

// toSerializable recursively stringifies BSON-specific types (ObjectID,
// Decimal128, binary) that don't round-trip cleanly through Parquet/SQL,
// mirroring the original connector's document normalization.
func toSerializable(value interface{}) interface{} {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = toSerializable(item)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(v))
		for _, elem := range v {
			out[elem.Key] = toSerializable(elem.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = toSerializable(item)
		}
		return out
	case primitive.ObjectID:
		return v.Hex()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(v.Data)
	case primitive.DateTime:
		return v.Time().UTC()
	default:
		return v
	}
}
