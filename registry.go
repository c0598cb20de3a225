package gpatx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDatasourceNotFound = errors.New("datasource not registered")

// Datasource is one registration: the factories a coordinator needs to open
// a participant for the named datasource.
type Datasource struct {
	Name     string
	Conns    ConnFactory
	Sessions SessionFactory

	// Provider is set when the registration owns a pool that must be
	// health-checked and closed with the registry.
	Provider Provider
}

// Registry maps datasource names to their factories. It is built once at
// startup and handed to every Coordinator; writes are serialized and a later
// registration for the same name replaces the earlier one.
type Registry struct {
	mutex       sync.RWMutex
	datasources map[string]Datasource
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		datasources: make(map[string]Datasource),
	}
}

// Register adds the factories for a datasource
func (r *Registry) Register(name string, conns ConnFactory, sessions SessionFactory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.datasources[name] = Datasource{Name: name, Conns: conns, Sessions: sessions}
}

// RegisterProvider registers a provider as both factories of a datasource
func (r *Registry) RegisterProvider(name string, provider Provider) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.datasources[name] = Datasource{Name: name, Conns: provider, Sessions: provider, Provider: provider}
}

// Lookup returns the registration for name
func (r *Registry) Lookup(name string) (Datasource, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ds, exists := r.datasources[name]
	if !exists {
		return Datasource{}, newDatasourceError(ErrorTypeConfiguration, name, "no datasource registered under this name", ErrDatasourceNotFound)
	}
	return ds, nil
}

// Names returns all registered datasource names, sorted
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.datasources))
	for name := range r.datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheck checks every registered provider. Registrations without a
// provider are skipped.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	results := make(map[string]error)
	for name, ds := range r.datasources {
		if ds.Provider == nil {
			continue
		}
		results[name] = ds.Provider.Health(ctx)
	}
	return results
}

// Close closes every registered provider and empties the registry. All
// providers are closed even if some fail.
func (r *Registry) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var errs []error
	for name, ds := range r.datasources {
		if ds.Provider == nil {
			continue
		}
		if err := ds.Provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing datasource %s: %w", name, err))
		}
	}

	r.datasources = make(map[string]Datasource)
	return errors.Join(errs...)
}
