package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("amqp", newAMQPConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "amqp",
		Description:  "AMQP 0-9-1 micro-batch consumer via rabbitmq/amqp091-go",
		Capabilities: []string{"fetch"},
	})
}

// AMQPConnector consumes one bounded micro-batch from a queue per Fetch
// call, stages the batch to a single file, and only then acknowledges the
// deliveries it contains.
type AMQPConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	connected bool
}

func newAMQPConnector(cfg map[string]interface{}) (core.Connector, error) {
	for _, key := range []string{"host", "queue", "username", "password"} {
		if _, err := requireString(cfg, key); err != nil {
			return nil, err
		}
	}
	return &AMQPConnector{BaseConnector: base.NewBaseConnector("amqp", "1.0.0"), cfg: cfg}, nil
}

// Connect opens a connection and channel, declaring the configured queue
// durable if it doesn't already exist.
func (c *AMQPConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	host := optionalString(c.cfg, "host", "")
	port := optionalInt(c.cfg, "port", 5672)
	user := optionalString(c.cfg, "username", "")
	pass := optionalString(c.cfg, "password", "")
	vhost := optionalString(c.cfg, "virtual_host", "/")
	queue := optionalString(c.cfg, "queue", "")

	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", user, pass, host, port, strings.TrimPrefix(vhost, "/"))

	conn, err := amqp.Dial(url)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to dial amqp broker")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open amqp channel")
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to declare amqp queue")
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.queue = queue
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch consumes a bounded micro-batch from the queue named by query (or
// the configured queue when query is empty).
func (c *AMQPConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, channel, defaultQueue := c.connected, c.channel, c.queue
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}

	queue := strings.TrimSpace(query)
	if queue == "" {
		queue = defaultQueue
	}

	deliveries, err := channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return &model.IngestionResult{
			Protocol: "amqp",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error(), "queue": queue},
		}, nil
	}

	maxMessages := optionalInt(c.cfg, "max_messages", 500)
	maxWait := time.Duration(optionalFloat(c.cfg, "max_wait_seconds", 5.0) * float64(time.Second))
	deadline := newBatchDeadline(maxMessages, maxWait)

	var rows []map[string]interface{}
	var tags []uint64
consumeLoop:
	for !deadline.done(len(rows)) {
		remaining := time.Until(deadline.deadline)
		if remaining <= 0 {
			break
		}
		select {
		case msg, ok := <-deliveries:
			if !ok {
				break consumeLoop
			}
			rows = append(rows, buildRecord("amqp", queue, msg.Body, msg.MessageId, map[string]interface{}{
				"routing_key": msg.RoutingKey,
				"exchange":    msg.Exchange,
			}))
			tags = append(tags, msg.DeliveryTag)
		case <-time.After(remaining):
			break consumeLoop
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(rows) == 0 {
		return &model.IngestionResult{
			Protocol:  "amqp",
			Success:   true,
			Metadata:  map[string]interface{}{"stream": queue, "messages": 0},
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	lakeRoot := optionalString(c.cfg, "lake_path", "./lake")
	stagedPath, err := stageBatch("amqp", queue, lakeRoot, rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to stage amqp batch")
	}

	// Only ack once the batch is durably staged: an ack issued before this
	// point and lost to a staging failure would permanently drop messages.
	for _, tag := range tags {
		_ = channel.Ack(tag, false)
	}

	return &model.IngestionResult{
		Protocol:  "amqp",
		Success:   true,
		Items:     []model.IngestedItem{{Kind: model.KindPreStaged, PreStagedPath: stagedPath}},
		Metadata:  map[string]interface{}{"stream": queue, "messages": len(rows)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close closes the channel and connection.
func (c *AMQPConnector) Close() error {
	c.mu.Lock()
	channel, conn := c.channel, c.conn
	c.connected = false
	c.mu.Unlock()

	if channel != nil {
		_ = channel.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return c.BaseConnector.Close()
}
