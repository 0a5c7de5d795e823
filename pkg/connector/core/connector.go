// Package core defines the contract every protocol connector implements.
package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/model"
)

// Connector is the minimal surface a source protocol must provide. A run
// connects once, fetches one or more times against the pipeline's query or
// resource descriptor, then closes. There is no destination-side connector:
// the warehouse is addressed directly by the orchestrator through
// pkg/warehouse.
type Connector interface {
	// Connect establishes the underlying session. Called once per run.
	Connect(ctx context.Context) error

	// Fetch retrieves data described by query and returns it as an
	// ingestion result. query is protocol-specific: a SQL statement, an
	// HTTP path, a remote file or directory path, a queue name.
	Fetch(ctx context.Context, query string) (*model.IngestionResult, error)

	// Close releases the underlying session. Must be safe to call more
	// than once.
	Close() error
}

// HealthStatus is a point-in-time health snapshot reported by a connector's
// health checker.
type HealthStatus struct {
	Status    string
	Timestamp time.Time
	Details   map[string]interface{}
	Error     error
}
