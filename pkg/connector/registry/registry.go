package registry

import (
	"fmt"
	"sync"

	"github.com/ajitpratap0/warehouse-etl/pkg/connector/core"
	"github.com/ajitpratap0/warehouse-etl/pkg/errors"
	"github.com/ajitpratap0/warehouse-etl/pkg/logger"
	"go.uber.org/zap"
)

// Registry maps a protocol name to the factory that builds its connector.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Factory builds a connector from a flattened connection config, as produced
// by pkg/config's layered merge.
type Factory func(cfg map[string]interface{}) (core.Connector, error)

var globalRegistry = NewRegistry()

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// Register adds a connector factory under the given protocol name. Protocol
// connectors call this from an init() in their package, following the
// compile-time registration pattern used throughout this module.
func (r *Registry) Register(protocol string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[protocol]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already registered", protocol))
	}

	r.factories[protocol] = factory
	r.logger.Info("connector registered", zap.String("protocol", protocol))
	return nil
}

// Create instantiates a connector for the given protocol.
func (r *Registry) Create(protocol string, cfg map[string]interface{}) (core.Connector, error) {
	r.mu.RLock()
	factory, exists := r.factories[protocol]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown protocol: %s", protocol))
	}

	conn, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create connector %s", protocol))
	}

	return conn, nil
}

// List returns the registered protocol names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Has reports whether a protocol has a registered factory.
func (r *Registry) Has(protocol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[protocol]
	return exists
}

// Clear removes all registered factories. Intended for test isolation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}

// Register adds a connector factory to the global registry.
func Register(protocol string, factory Factory) error {
	return globalRegistry.Register(protocol, factory)
}

// Create instantiates a connector from the global registry.
func Create(protocol string, cfg map[string]interface{}) (core.Connector, error) {
	return globalRegistry.Create(protocol, cfg)
}

// List returns the protocols registered in the global registry.
func List() []string {
	return globalRegistry.List()
}

// Has reports whether a protocol is registered in the global registry.
func Has(protocol string) bool {
	return globalRegistry.Has(protocol)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}

// ConnectorInfo describes a registered connector for the CLI's list
// subcommand.
type ConnectorInfo struct {
	Protocol    string   `json:"protocol"`
	Description string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// Catalog holds descriptive metadata about registered connectors, separate
// from the factories themselves so protocol packages can register rich
// descriptions without the registry needing to know their shape.
type Catalog struct {
	entries map[string]*ConnectorInfo
	mu      sync.RWMutex
}

var globalCatalog = &Catalog{entries: make(map[string]*ConnectorInfo)}

// Describe adds or replaces a connector's catalog entry.
func Describe(info *ConnectorInfo) {
	globalCatalog.mu.Lock()
	defer globalCatalog.mu.Unlock()
	globalCatalog.entries[info.Protocol] = info
}

// DescribeOf retrieves a connector's catalog entry, if any.
func DescribeOf(protocol string) (*ConnectorInfo, bool) {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()
	info, ok := globalCatalog.entries[protocol]
	return info, ok
}

// Catalogue returns all known connector descriptions.
func Catalogue() []*ConnectorInfo {
	globalCatalog.mu.RLock()
	defer globalCatalog.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(globalCatalog.entries))
	for _, info := range globalCatalog.entries {
		infos = append(infos, info)
	}
	return infos
}
