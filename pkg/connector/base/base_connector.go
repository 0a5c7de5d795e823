// Package base provides the foundational BaseConnector embedded by every
// protocol connector. It implements the resiliency primitives shared across
// the SQL, HTTP, file, NoSQL, and message-broker connector families: circuit
// breaking, rate limiting, health monitoring, and retryable error handling.
//
// # Usage
//
// Protocol connectors embed BaseConnector and call Initialize before use:
//
//	type PostgresConnector struct {
//	    *base.BaseConnector
//	    // connector-specific fields
//	}
//
//	func NewPostgresConnector(name string) *PostgresConnector {
//	    return &PostgresConnector{
//	        BaseConnector: base.NewBaseConnector(name, "1.0.0"),
//	    }
//	}
package base

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/warehouse-etl/pkg/clients"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// Settings holds the subset of a connection's merged configuration that the
// resiliency layer cares about: retry, rate limiting, and circuit breaking.
// Protocol-specific fields (DSNs, hosts, credentials) stay in each
// connector's own config handling.
type Settings struct {
	RetryAttempts    int
	RetryDelay       time.Duration
	RateLimitPerSec  float64
	CircuitBreaker   clients.CircuitBreakerConfig
	HealthInterval   time.Duration
}

// DefaultSettings returns sane defaults for connectors that don't override them.
func DefaultSettings() Settings {
	return Settings{
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		RateLimitPerSec: 0,
		CircuitBreaker: clients.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          30 * time.Second,
		},
		HealthInterval: 30 * time.Second,
	}
}

// BaseConnector provides circuit breaking, rate limiting, health monitoring,
// and retryable error handling common to all protocol connectors.
type BaseConnector struct {
	name    string
	version string
	logger  *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	closeMutex sync.Mutex

	circuitBreaker *clients.CircuitBreaker
	rateLimiter    clients.RateLimiter
	healthChecker  *HealthChecker
	errorHandler   *ErrorHandler
	retryPolicy    *RetryPolicy
}

// NewBaseConnector creates a base connector with the given name and version.
// Call Initialize before use.
func NewBaseConnector(name, version string) *BaseConnector {
	return &BaseConnector{
		name:    name,
		version: version,
		logger:  logger.Get().With(zap.String("connector", name)),
	}
}

// Initialize wires up the circuit breaker, rate limiter, health checker, and
// error handler from the given settings. Must be called before any other
// BaseConnector method.
func (bc *BaseConnector) Initialize(ctx context.Context, settings Settings) error {
	bc.ctx, bc.cancel = context.WithCancel(ctx)

	bc.circuitBreaker = clients.NewCircuitBreakerWithLogger(settings.CircuitBreaker, bc.logger)

	if settings.RateLimitPerSec > 0 {
		bc.rateLimiter = clients.NewRateLimiter(int(settings.RateLimitPerSec), int(settings.RateLimitPerSec*2))
	}

	interval := settings.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	bc.healthChecker = NewHealthChecker(bc.name, interval)
	bc.healthChecker.Start(bc.ctx)

	bc.errorHandler = NewErrorHandler(bc.logger, settings.RetryAttempts, settings.RetryDelay)
	bc.retryPolicy = NewRetryPolicy(settings.RetryAttempts, settings.RetryDelay)

	bc.logger.Info("connector initialized", zap.String("version", bc.version))
	return nil
}

// Name returns the connector's registered protocol name.
func (bc *BaseConnector) Name() string { return bc.name }

// Version returns the connector's build version.
func (bc *BaseConnector) Version() string { return bc.version }

// Health reports an error if the connector is closed or its health checker
// has observed consecutive failures.
func (bc *BaseConnector) Health(ctx context.Context) error {
	if bc.closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}

	status := bc.healthChecker.GetStatus()
	if status.Status != "healthy" {
		return errors.Wrap(status.Error, errors.ErrorTypeHealth, "health check failed")
	}

	return nil
}

// Close stops the health checker and background context. Safe to call more
// than once.
func (bc *BaseConnector) Close() error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}

	bc.logger.Info("closing connector")

	if bc.cancel != nil {
		bc.cancel()
	}
	if bc.healthChecker != nil {
		bc.healthChecker.Stop()
	}

	bc.closed = true
	return nil
}

// ExecuteWithRetry runs fn under the connector's retry policy, backing off
// between retryable failures.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retryPolicy.Execute(ctx, fn)
}

// ExecuteWithCircuitBreaker runs fn behind the connector's circuit breaker.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	return bc.circuitBreaker.Execute(fn)
}

// RateLimit blocks until the connector's rate limiter admits the next
// request. A no-op when no limiter is configured.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.rateLimiter == nil {
		return nil
	}
	return bc.rateLimiter.Wait(ctx)
}

// GetLogger returns the connector's structured logger.
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetContext returns the connector's lifecycle context, cancelled on Close.
func (bc *BaseConnector) GetContext() context.Context {
	return bc.ctx
}

// IsHealthy reports whether the connector is open and its last health check
// passed.
func (bc *BaseConnector) IsHealthy() bool {
	if bc.closed {
		return false
	}
	if bc.healthChecker != nil {
		return bc.healthChecker.GetStatus().Status == "healthy"
	}
	return true
}

// UpdateHealth records a health observation, typically called after a Fetch
// succeeds or fails.
func (bc *BaseConnector) UpdateHealth(healthy bool, details map[string]interface{}) {
	if bc.healthChecker != nil {
		bc.healthChecker.UpdateStatus(healthy, details)
	}
}

// GetCircuitBreaker returns the connector's circuit breaker.
func (bc *BaseConnector) GetCircuitBreaker() *clients.CircuitBreaker {
	return bc.circuitBreaker
}

// GetRateLimiter returns the connector's rate limiter, or nil if unconfigured.
func (bc *BaseConnector) GetRateLimiter() clients.RateLimiter {
	return bc.rateLimiter
}

// GetErrorHandler returns the connector's error handler.
func (bc *BaseConnector) GetErrorHandler() *ErrorHandler {
	return bc.errorHandler
}

// HandleError delegates to the connector's error handler.
func (bc *BaseConnector) HandleError(ctx context.Context, err error) error {
	return bc.errorHandler.HandleError(ctx, err)
}

// ShouldRetry reports whether an error should be retried.
func (bc *BaseConnector) ShouldRetry(err error) bool {
	return bc.errorHandler.ShouldRetry(err)
}
