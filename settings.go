package gpatx

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DatasourceConfig configures one named datasource
type DatasourceConfig struct {
	// Provider selects the ORM adapter, e.g. "gorm" or "bun"
	Provider string `mapstructure:"provider"`
	Config   `mapstructure:",squash"`
}

// Settings is the process configuration of the transaction layer
type Settings struct {
	IsolationLevel      string                      `mapstructure:"isolation_level"`
	StoreCreationStacks bool                        `mapstructure:"store_creation_stacks"`
	LogLevel            string                      `mapstructure:"log_level"`
	Datasources         map[string]DatasourceConfig `mapstructure:"datasources"`
}

// LoadSettings reads settings from the YAML file at path and from GPATX_*
// environment variables. Datasource names are case-insensitive and are
// returned lower-cased.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("isolation_level", "repeatable_read")
	v.SetDefault("store_creation_stacks", false)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("GPATX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewErrorWithCause(ErrorTypeConfiguration, "failed to read settings from "+path, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, NewErrorWithCause(ErrorTypeConfiguration, "failed to decode settings", err)
	}
	if _, err := settings.Isolation(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Isolation returns the parsed isolation level
func (s *Settings) Isolation() (sql.IsolationLevel, error) {
	return ParseIsolationLevel(s.IsolationLevel)
}

// DatasourceNames returns the configured datasource names, sorted
func (s *Settings) DatasourceNames() []string {
	names := make([]string, 0, len(s.Datasources))
	for name := range s.Datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoordinatorOptions returns the coordinator options these settings imply
func (s *Settings) CoordinatorOptions(logger *zap.Logger) ([]Option, error) {
	level, err := s.Isolation()
	if err != nil {
		return nil, err
	}
	return []Option{
		WithIsolationLevel(level),
		WithCreationStacks(s.StoreCreationStacks),
		WithLogger(logger),
	}, nil
}

// NewLogger builds a production zap logger at the configured level
func (s *Settings) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeConfiguration, fmt.Sprintf("unknown log level %q", s.LogLevel), err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// OpenRegistry creates a provider for every configured datasource and
// registers it. The provider packages must have been imported so their
// factories are registered. On failure the providers opened so far are closed.
func OpenRegistry(settings *Settings) (*Registry, error) {
	registry := NewRegistry()
	for _, name := range settings.DatasourceNames() {
		ds := settings.Datasources[name]
		provider, err := NewProvider(ds.Provider, ds.Config)
		if err != nil {
			openErr := asError(err, ErrorTypeConfiguration, name, "failed to open datasource")
			return nil, errors.Join(openErr, registry.Close())
		}
		registry.RegisterProvider(name, provider)
	}
	return registry, nil
}
