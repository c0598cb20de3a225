// Package gpagorm provides a GORM adapter for gpatx datasources
package gpagorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lemmego/gpatx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements gpatx.Provider using GORM
type Provider struct {
	*SessionFactory
	sqlDB   *sql.DB
	config  gpatx.Config
	dialect string
}

// Factory implements gpatx.ProviderFactory
type Factory struct{}

// Create creates a new GORM provider instance
func (f *Factory) Create(config gpatx.Config) (gpatx.Provider, error) {
	gormOpts := config.ProviderOptions("gorm")

	// Configure GORM
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(gormOpts)),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}

	// Apply custom configurations from options
	if gormOpts != nil {
		if singularTable, ok := gormOpts["singular_table"].(bool); ok {
			gormConfig.NamingStrategy = schema.NamingStrategy{
				SingularTable: singularTable,
			}
		}
	}

	var dialector gorm.Dialector
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(buildPostgresDSN(config))
	case "mysql":
		dialector = mysql.Open(buildMySQLDSN(config))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(config.Database)
	case "sqlserver", "mssql":
		dialector = sqlserver.Open(buildSQLServerDSN(config))
	default:
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeUnsupported,
			Message: fmt.Sprintf("unsupported driver: %s", config.Driver),
		}
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to connect to database",
			Cause:   err,
		}
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to get underlying sql.DB",
			Cause:   err,
		}
	}

	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	return &Provider{
		SessionFactory: NewSessionFactory(db),
		sqlDB:          sqlDB,
		config:         config,
		dialect:        gpatx.DialectForDriver(config.Driver),
	}, nil
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3", "sqlserver", "mssql"}
}

// DB returns the pooled GORM handle, e.g. for migrations
func (p *Provider) DB() *gorm.DB {
	return p.db
}

// Dialect returns the gpatx dialect of the configured driver
func (p *Provider) Dialect() string {
	return p.dialect
}

// Conn checks a connection out of the pool
func (p *Provider) Conn(ctx context.Context) (gpatx.Conn, error) {
	return gpatx.DBConnFactory{DB: p.sqlDB}.Conn(ctx)
}

// Health checks the database connection health
func (p *Provider) Health(ctx context.Context) error {
	if err := p.sqlDB.PingContext(ctx); err != nil {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "database is not reachable",
			Cause:   err,
		}
	}
	return nil
}

// Close closes the connection pool
func (p *Provider) Close() error {
	return p.sqlDB.Close()
}

// ProviderInfo returns information about this provider
func (p *Provider) ProviderInfo() gpatx.ProviderInfo {
	return gpatx.ProviderInfo{
		Name:         "GORM",
		Version:      "1.0.0",
		DatabaseType: gpatx.DatabaseTypeSQL,
		Dialect:      p.dialect,
	}
}

// gormLogLevel maps the log_level option to a GORM log level. Statement
// logging goes to stdout, so it stays silent unless asked for.
func gormLogLevel(gormOpts map[string]interface{}) logger.LogLevel {
	level, _ := gormOpts["log_level"].(string)
	switch level {
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	}
	return logger.Silent
}

// =====================================
// Error Conversion
// =====================================

// convertGormError converts GORM errors to gpatx errors
func convertGormError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeNotFound,
			Message: "record not found",
			Cause:   err,
		}
	case errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, sql.ErrTxDone):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTransaction,
			Message: "invalid transaction",
			Cause:   err,
		}
	case errors.Is(err, gorm.ErrNotImplemented), errors.Is(err, gorm.ErrUnsupportedRelation):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeUnsupported,
			Message: "operation not supported",
			Cause:   err,
		}
	case errors.Is(err, gorm.ErrMissingWhereClause), errors.Is(err, gorm.ErrPrimaryKeyRequired),
		errors.Is(err, gorm.ErrModelValueRequired), errors.Is(err, gorm.ErrInvalidData):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConfiguration,
			Message: "invalid statement",
			Cause:   err,
		}
	case errors.Is(err, sql.ErrConnDone):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "connection is closed",
			Cause:   err,
		}
	}

	// Check for common database constraint errors
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique") {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeDuplicate,
			Message: "duplicate key violation",
			Cause:   err,
		}
	}
	if strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "constraint") {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConstraint,
			Message: "constraint violation",
			Cause:   err,
		}
	}
	if strings.Contains(errStr, "timeout") {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTimeout,
			Message: "operation timeout",
			Cause:   err,
		}
	}

	return gpatx.Error{
		Type:    gpatx.ErrorTypeDatabase,
		Message: "database operation failed",
		Cause:   err,
	}
}

// =====================================
// DSN Builders
// =====================================

// buildPostgresDSN builds a PostgreSQL DSN
func buildPostgresDSN(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database)

	if config.SSL.Enabled {
		dsn += " sslmode=" + config.SSL.Mode
		if config.SSL.CertFile != "" {
			dsn += " sslcert=" + config.SSL.CertFile
		}
		if config.SSL.KeyFile != "" {
			dsn += " sslkey=" + config.SSL.KeyFile
		}
		if config.SSL.CAFile != "" {
			dsn += " sslrootcert=" + config.SSL.CAFile
		}
	} else {
		dsn += " sslmode=disable"
	}

	return dsn
}

// buildMySQLDSN builds a MySQL DSN
func buildMySQLDSN(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	if config.SSL.Enabled {
		dsn += "&tls=" + config.SSL.Mode
	}

	return dsn
}

// buildSQLServerDSN builds a SQL Server DSN
func buildSQLServerDSN(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)
}

// =====================================
// Registration
// =====================================

// init registers the GORM provider factory
func init() {
	gpatx.RegisterProvider("gorm", &Factory{})
}
