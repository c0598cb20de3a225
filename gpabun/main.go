// Package gpabun provides a Bun adapter for gpatx datasources
package gpabun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/gpatx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements gpatx.Provider using Bun
type Provider struct {
	*SessionFactory
	config  gpatx.Config
	dialect string
}

// Factory implements gpatx.ProviderFactory
type Factory struct{}

// Create creates a new Bun provider instance
func (f *Factory) Create(config gpatx.Config) (gpatx.Provider, error) {
	bunOpts := config.ProviderOptions("bun")

	// Initialize database connection
	var sqlDB *sql.DB
	var err error

	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		if driver, _ := bunOpts["driver"].(string); driver == "pgdriver" {
			sqlDB = createPgDriverConnection(config)
		} else {
			sqlDB, err = createPostgresConnection(config)
		}
	case "mysql":
		sqlDB, err = createMySQLConnection(config)
	case "sqlite", "sqlite3":
		sqlDB, err = createSQLiteConnection(config)
	default:
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeUnsupported,
			Message: fmt.Sprintf("unsupported driver: %s", config.Driver),
		}
	}

	if err != nil {
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to connect to database",
			Cause:   err,
		}
	}

	// Configure connection pool
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

	// Create Bun database instance
	var bunDB *bun.DB
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		bunDB = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bunDB = bun.NewDB(sqlDB, mysqldialect.New())
	case "sqlite", "sqlite3":
		bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	// Add query hook for logging if enabled
	if logLevel, ok := bunOpts["log_level"].(string); ok && logLevel != "silent" {
		bunDB.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(logLevel == "debug"),
		))
	}

	return &Provider{
		SessionFactory: NewSessionFactory(bunDB),
		config:         config,
		dialect:        gpatx.DialectForDriver(config.Driver),
	}, nil
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"}
}

// DB returns the pooled Bun handle, e.g. for schema setup
func (p *Provider) DB() *bun.DB {
	return p.db
}

// Dialect returns the gpatx dialect of the configured driver
func (p *Provider) Dialect() string {
	return p.dialect
}

// Conn checks a connection out of the pool
func (p *Provider) Conn(ctx context.Context) (gpatx.Conn, error) {
	return gpatx.DBConnFactory{DB: p.db.DB}.Conn(ctx)
}

// Health checks the database connection health
func (p *Provider) Health(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "database is not reachable",
			Cause:   err,
		}
	}
	return nil
}

// Close closes the database connection
func (p *Provider) Close() error {
	return p.db.Close()
}

// ProviderInfo returns information about this provider
func (p *Provider) ProviderInfo() gpatx.ProviderInfo {
	return gpatx.ProviderInfo{
		Name:         "Bun",
		Version:      "1.0.0",
		DatabaseType: gpatx.DatabaseTypeSQL,
		Dialect:      p.dialect,
	}
}

// =====================================
// Connection Helpers
// =====================================

// createPostgresConnection creates a PostgreSQL connection through lib/pq
func createPostgresConnection(config gpatx.Config) (*sql.DB, error) {
	return sql.Open("postgres", buildPostgresDSN(config))
}

// createPgDriverConnection creates a PostgreSQL connection using pgdriver
func createPgDriverConnection(config gpatx.Config) *sql.DB {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(buildPostgresDSN(config)))
	return sql.OpenDB(connector)
}

// createMySQLConnection creates a MySQL connection
func createMySQLConnection(config gpatx.Config) (*sql.DB, error) {
	return sql.Open("mysql", buildMySQLDSN(config))
}

// createSQLiteConnection creates a SQLite connection
func createSQLiteConnection(config gpatx.Config) (*sql.DB, error) {
	return sql.Open("sqlite3", config.Database)
}

// buildPostgresDSN builds a PostgreSQL DSN string
func buildPostgresDSN(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	params := []string{}
	if config.SSL.Enabled {
		params = append(params, "sslmode="+config.SSL.Mode)
		if config.SSL.CertFile != "" {
			params = append(params, "sslcert="+config.SSL.CertFile)
		}
		if config.SSL.KeyFile != "" {
			params = append(params, "sslkey="+config.SSL.KeyFile)
		}
		if config.SSL.CAFile != "" {
			params = append(params, "sslrootcert="+config.SSL.CAFile)
		}
	} else {
		params = append(params, "sslmode=disable")
	}

	return dsn + "?" + strings.Join(params, "&")
}

// buildMySQLDSN builds a MySQL DSN string
func buildMySQLDSN(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	mysqlConfig := mysql.NewConfig()
	mysqlConfig.User = config.Username
	mysqlConfig.Passwd = config.Password
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	mysqlConfig.DBName = config.Database
	mysqlConfig.ParseTime = true
	if config.SSL.Enabled {
		mysqlConfig.TLSConfig = config.SSL.Mode
	}

	return mysqlConfig.FormatDSN()
}

// =====================================
// Error Conversion
// =====================================

// convertBunError converts Bun errors to gpatx errors
func convertBunError(err error) error {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeNotFound,
			Message: "record not found",
			Cause:   err,
		}
	case errors.Is(err, sql.ErrTxDone):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTransaction,
			Message: "transaction has already been committed or rolled back",
			Cause:   err,
		}
	case errors.Is(err, sql.ErrConnDone):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "connection is closed",
			Cause:   err,
		}
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique"):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeDuplicate,
			Message: "duplicate key violation",
			Cause:   err,
		}
	case strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "constraint"):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConstraint,
			Message: "constraint violation",
			Cause:   err,
		}
	case strings.Contains(errStr, "timeout"):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTimeout,
			Message: "operation timeout",
			Cause:   err,
		}
	case strings.Contains(errStr, "connection"):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "connection error",
			Cause:   err,
		}
	default:
		return gpatx.Error{
			Type:    gpatx.ErrorTypeDatabase,
			Message: "database operation failed",
			Cause:   err,
		}
	}
}

// =====================================
// Registration
// =====================================

// init registers the Bun provider factory
func init() {
	gpatx.RegisterProvider("bun", &Factory{})
}
