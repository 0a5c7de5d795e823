package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/base"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/connector/registry"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

func init() {
	_ = registry.Register("nats", newNATSConnector)
	registry.Describe(&registry.ConnectorInfo{
		Protocol:     "nats",
		Description:  "NATS micro-batch consumer via nats-io/nats.go",
		Capabilities: []string{"fetch"},
	})
}

// NATSConnector consumes one bounded micro-batch from a subject per Fetch
// call via a synchronous subscription.
type NATSConnector struct {
	*base.BaseConnector
	mu        sync.Mutex
	cfg       map[string]interface{}
	conn      *nats.Conn
	subject   string
	connected bool
}

func newNATSConnector(cfg map[string]interface{}) (core.Connector, error) {
	if len(stringSlice(cfg, "servers")) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required key: servers")
	}
	if _, err := requireString(cfg, "subject"); err != nil {
		return nil, err
	}
	return &NATSConnector{BaseConnector: base.NewBaseConnector("nats", "1.0.0"), cfg: cfg}, nil
}

func stringSlice(cfg map[string]interface{}, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	default:
		return nil
	}
}

// Connect dials the configured server list.
func (c *NATSConnector) Connect(ctx context.Context) error {
	if err := c.Initialize(ctx, base.DefaultSettings()); err != nil {
		return err
	}

	servers := strings.Join(stringSlice(c.cfg, "servers"), ",")

	conn, err := nats.Connect(servers, nats.Timeout(10*time.Second))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to nats")
	}

	c.mu.Lock()
	c.conn = conn
	c.subject, _ = c.cfg["subject"].(string)
	c.connected = true
	c.mu.Unlock()

	c.UpdateHealth(true, nil)
	return nil
}

// Fetch subscribes to the subject named by query (or the configured
// subject when query is empty) and consumes a bounded micro-batch.
func (c *NATSConnector) Fetch(ctx context.Context, query string) (*model.IngestionResult, error) {
	c.mu.Lock()
	connected, conn, defaultSubject := c.connected, c.conn, c.subject
	c.mu.Unlock()

	if !connected {
		return nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}

	subject := strings.TrimSpace(query)
	if subject == "" {
		subject = defaultSubject
	}

	queueGroup := optionalString(c.cfg, "queue_group", "")
	var sub *nats.Subscription
	var err error
	if queueGroup != "" {
		sub, err = conn.QueueSubscribeSync(subject, queueGroup)
	} else {
		sub, err = conn.SubscribeSync(subject)
	}
	if err != nil {
		return &model.IngestionResult{
			Protocol: "nats",
			Success:  false,
			Metadata: map[string]interface{}{"error": err.Error(), "subject": subject},
		}, nil
	}
	defer func() { _ = sub.Unsubscribe() }()

	maxMessages := optionalInt(c.cfg, "max_messages", 500)
	maxWait := time.Duration(optionalFloat(c.cfg, "max_wait_seconds", 5.0) * float64(time.Second))
	deadline := newBatchDeadline(maxMessages, maxWait)
	pollTimeout := time.Duration(optionalFloat(c.cfg, "poll_timeout_seconds", 1.0) * float64(time.Second))

	var rows []map[string]interface{}
	for !deadline.done(len(rows)) {
		remaining := time.Until(deadline.deadline)
		if remaining <= 0 {
			break
		}
		wait := pollTimeout
		if remaining < wait {
			wait = remaining
		}

		waitCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := sub.NextMsgWithContext(waitCtx)
		cancel()
		if err != nil {
			if err == nats.ErrTimeout || err == context.DeadlineExceeded {
				continue
			}
			break
		}

		rows = append(rows, buildRecord("nats", subject, msg.Data, "", map[string]interface{}{
			"subject": msg.Subject,
		}))
	}

	if len(rows) == 0 {
		return &model.IngestionResult{
			Protocol:  "nats",
			Success:   true,
			Metadata:  map[string]interface{}{"stream": subject, "messages": 0},
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	lakeRoot := optionalString(c.cfg, "lake_path", "./lake")
	stagedPath, err := stageBatch("nats", subject, lakeRoot, rows)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to stage nats batch")
	}

	return &model.IngestionResult{
		Protocol:  "nats",
		Success:   true,
		Items:     []model.IngestedItem{{Kind: model.KindPreStaged, PreStagedPath: stagedPath}},
		Metadata:  map[string]interface{}{"stream": subject, "messages": len(rows)},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Close closes the NATS connection.
func (c *NATSConnector) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return c.BaseConnector.Close()
}
