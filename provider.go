package gpatx

import (
	"sort"
	"sync"
)

// =====================================
// Provider Factory Registration
// =====================================

// Provider factories register themselves from their package's init
// function, the way database/sql drivers do.
var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProvider registers a provider factory under name
func RegisterProvider(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// ListProviders returns all registered provider names
func ListProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider creates a new provider instance
//
// Example:
//
//	import _ "github.com/lemmego/gpatx/gpagorm"
//
//	provider, err := gpatx.NewProvider("gorm", config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry.RegisterProvider("orders", provider)
func NewProvider(providerName string, config Config) (Provider, error) {
	factoriesMu.RLock()
	factory, exists := factories[providerName]
	factoriesMu.RUnlock()

	if !exists {
		return nil, NewError(ErrorTypeConfiguration, "provider not found: "+providerName)
	}
	return factory.Create(config)
}
