package gpatx

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// =====================================
// Core Types and Constants
// =====================================

// Config represents the connection configuration of one datasource
type Config struct {
	// Connection details
	Driver        string `json:"driver" yaml:"driver" mapstructure:"driver"`
	ConnectionURL string `json:"connection_url" yaml:"connection_url" mapstructure:"connection_url"`
	Host          string `json:"host" yaml:"host" mapstructure:"host"`
	Port          int    `json:"port" yaml:"port" mapstructure:"port"`
	Database      string `json:"database" yaml:"database" mapstructure:"database"`
	Username      string `json:"username" yaml:"username" mapstructure:"username"`
	Password      string `json:"password" yaml:"password" mapstructure:"password"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// Additional options, keyed by provider name ("gorm", "bun", ...)
	Options map[string]interface{} `json:"options" yaml:"options" mapstructure:"options"`

	// SSL/TLS configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" mapstructure:"ssl"`
}

// SSLConfig represents SSL/TLS configuration
type SSLConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode"`
	CertFile string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`
}

// ProviderOptions returns the options map stored under the provider's name
func (c Config) ProviderOptions(provider string) map[string]interface{} {
	if options, ok := c.Options[provider]; ok {
		if m, ok := options.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

// ProviderInfo contains information about the provider
type ProviderInfo struct {
	Name         string
	Version      string
	DatabaseType DatabaseType
	Dialect      string
}

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypeSQL      DatabaseType = "sql"
	DatabaseTypeDocument DatabaseType = "document"
	DatabaseTypeKV       DatabaseType = "key-value"
)

// Dialect constants
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
	DialectPgSQL  = "pgsql"
	DialectMsSQL  = "mssql"
	DialectOracle = "oracle"
)

// SupportedDialects is a list of all supported database dialects
var SupportedDialects = []string{
	DialectSQLite,
	DialectMySQL,
	DialectPgSQL,
	DialectMsSQL,
	DialectOracle,
}

// IsDialectSupported checks if the given dialect is supported
func IsDialectSupported(dialect string) bool {
	for _, d := range SupportedDialects {
		if d == dialect {
			return true
		}
	}
	return false
}

// DialectForDriver maps a driver name as used in Config.Driver to its dialect
func DialectForDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgsql":
		return DialectPgSQL
	case "mysql":
		return DialectMySQL
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "sqlserver", "mssql":
		return DialectMsSQL
	case "oracle":
		return DialectOracle
	}
	return ""
}

// DefaultIsolationLevel is the isolation level the coordinator enforces on
// every connection unless configured otherwise.
const DefaultIsolationLevel = sql.LevelRepeatableRead

// ParseIsolationLevel converts a configuration value such as
// "repeatable_read" or "read committed" into a sql.IsolationLevel.
func ParseIsolationLevel(s string) (sql.IsolationLevel, error) {
	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch normalized {
	case "", "default":
		return sql.LevelDefault, nil
	case "read uncommitted":
		return sql.LevelReadUncommitted, nil
	case "read committed":
		return sql.LevelReadCommitted, nil
	case "write committed":
		return sql.LevelWriteCommitted, nil
	case "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "snapshot":
		return sql.LevelSnapshot, nil
	case "serializable":
		return sql.LevelSerializable, nil
	case "linearizable":
		return sql.LevelLinearizable, nil
	}
	return sql.LevelDefault, NewError(ErrorTypeConfiguration, fmt.Sprintf("unknown isolation level %q", s))
}

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeConnection    ErrorType = "connection"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeTransaction   ErrorType = "transaction"
	ErrorTypeAggregate     ErrorType = "aggregate_transaction"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeDuplicate     ErrorType = "duplicate"
	ErrorTypeConstraint    ErrorType = "constraint"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeUnsupported   ErrorType = "unsupported"
	ErrorTypeDatabase      ErrorType = "database"
)
