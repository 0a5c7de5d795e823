// Package stream implements the message-broker connector family (Kafka,
// AMQP, NATS). Every connector consumes one bounded micro-batch per Fetch
// call (stopping at max_messages or max_wait_seconds, whichever comes
// first) and stages the batch to a single columnar file itself via
// stageBatch. Kafka commits offsets and AMQP acknowledges deliveries only
// after that file is staged, so a batch whose staging fails is redelivered.
// The NATS connector uses a core subscription with no acknowledgement, so a
// NATS batch whose staging fails is not redelivered.
// Fetch returns one KindPreStaged item pointing at that file; no in-memory
// payload crosses back to the orchestrator.
package stream

import (
	"encoding/json"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/model"
	"github.com/ajitpratap0/warehouse-etl/pkg/staging"
)

func requireString(cfg map[string]interface{}, key string) (string, error) {
	v, _ := cfg[key].(string)
	if v == "" {
		return "", errors.New(errors.ErrorTypeConfig, "missing required key: "+key)
	}
	return v, nil
}

func optionalString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalInt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func optionalFloat(cfg map[string]interface{}, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func optionalBool(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

// decodePayload parses payload as JSON when possible, falling back to the
// raw decoded string.
func decodePayload(payload []byte) interface{} {
	if payload == nil {
		return nil
	}

	var parsed interface{}
	if err := json.Unmarshal(payload, &parsed); err == nil {
		return parsed
	}
	return string(payload)
}

// buildRecord normalizes one stream message into the row shape every
// stream connector emits, matching the event-record fields the original
// implementation's shared batch helper produced.
func buildRecord(protocol, streamName string, payload []byte, messageKey string, metadata map[string]interface{}) map[string]interface{} {
	payloadValue := decodePayload(payload)
	var payloadJSON interface{}
	if payloadValue != nil {
		if encoded, err := json.Marshal(payloadValue); err == nil {
			payloadJSON = string(encoded)
		}
	}

	var metadataJSON string
	if encoded, err := json.Marshal(metadata); err == nil {
		metadataJSON = string(encoded)
	}

	row := map[string]interface{}{
		"protocol":   protocol,
		"stream":     streamName,
		"event_time": time.Now().UTC().Format(time.RFC3339Nano),
		"payload":    payloadJSON,
		"metadata":   metadataJSON,
	}
	if messageKey != "" {
		row["message_key"] = messageKey
	}
	return row
}

// batchDeadline implements the §4.8 stop condition: stop consuming once
// either maxMessages records have been collected or maxWait has elapsed,
// whichever comes first.
type batchDeadline struct {
	maxMessages int
	deadline    time.Time
}

func newBatchDeadline(maxMessages int, maxWait time.Duration) batchDeadline {
	return batchDeadline{maxMessages: maxMessages, deadline: time.Now().Add(maxWait)}
}

func (b batchDeadline) done(collected int) bool {
	return collected >= b.maxMessages || time.Now().After(b.deadline)
}

// stageBatch writes rows to a single staged file under lakeRoot using the
// same partition scheme as a batch source (pkg/staging.Write), and returns
// its path. A connector must call this, and succeed, before it acks or
// commits the messages rows were built from: staging failure must leave the
// broker position untouched so the batch is redelivered.
func stageBatch(protocol, streamName, lakeRoot string, rows []map[string]interface{}) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	result := &model.IngestionResult{
		Protocol: protocol,
		Success:  true,
		Items:    []model.IngestedItem{{Kind: model.KindRows, Rows: rows}},
	}
	paths, err := staging.Write(result, lakeRoot, streamName)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", nil
	}
	return paths[0], nil
}
