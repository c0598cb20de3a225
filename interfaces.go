package gpatx

import (
	"context"
	"database/sql"
)

// =====================================
// Connection Layer
// =====================================

// Conn is one physical database connection checked out of a pool.
type Conn interface {
	// IsolationLevel returns the isolation level new transactions on this
	// connection will run with.
	IsolationLevel() (sql.IsolationLevel, error)

	// SetIsolationLevel changes the isolation level for transactions begun
	// after the call.
	SetIsolationLevel(level sql.IsolationLevel) error

	// AutoCommit reports whether statements outside an explicit transaction
	// are committed immediately.
	AutoCommit() bool

	// SetAutoCommit toggles auto-commit. With auto-commit off, all session
	// work must run inside a native transaction.
	SetAutoCommit(enabled bool) error

	// Close returns the connection to its pool.
	Close() error
}

// ConnFactory hands out connections for one datasource.
type ConnFactory interface {
	Conn(ctx context.Context) (Conn, error)
}

// =====================================
// Session Layer
// =====================================

// NativeTx is the database transaction handle obtained from a Session.
type NativeTx interface {
	Commit() error
	Rollback() error
}

// Session is an ORM session bound to exactly one connection.
type Session interface {
	// Get loads the entity whose primary key equals id into dest.
	// Returns ErrorTypeNotFound if no row matches.
	Get(ctx context.Context, dest interface{}, id interface{}) error

	// Save inserts a new entity.
	Save(ctx context.Context, entity interface{}) error

	// SaveOrUpdate inserts the entity or overwrites the stored row with the same key.
	SaveOrUpdate(ctx context.Context, entity interface{}) error

	// Delete removes the row of the given entity.
	Delete(ctx context.Context, entity interface{}) error

	// DeleteWhere removes every row of model's table whose column equals value.
	DeleteWhere(ctx context.Context, model interface{}, column string, value interface{}) (int64, error)

	// Count returns the number of rows of model's table whose column equals value.
	Count(ctx context.Context, model interface{}, column string, value interface{}) (int64, error)

	// FindAll loads every row of the table of dest (a pointer to a slice),
	// ordered ascending by orderColumn.
	FindAll(ctx context.Context, dest interface{}, orderColumn string) error

	// Query runs a raw query and scans the result into dest.
	Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec runs a raw statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)

	// Contains reports whether the entity instance is tracked by this session.
	// Entities are tracked by pointer; values that cannot be map keys are
	// never tracked.
	Contains(entity interface{}) bool

	// Attach starts tracking an entity instance loaded elsewhere.
	Attach(entity interface{})

	// Flush pushes pending changes to the database.
	Flush(ctx context.Context) error

	// BeginTransaction starts a native transaction on the bound connection.
	BeginTransaction(ctx context.Context) (NativeTx, error)

	// Close releases the session. An unfinished native transaction is rolled
	// back. The bound connection is left open.
	Close() error
}

// SessionFactory opens sessions bound to an explicit connection.
type SessionFactory interface {
	OpenSession(ctx context.Context, conn Conn) (Session, error)
}

// Result represents the result of a statement that doesn't return rows.
type Result interface {
	// LastInsertId returns the integer generated by the database
	// in response to a command. Not every driver supports this.
	LastInsertId() (int64, error)

	// RowsAffected returns the number of rows affected by an
	// update, insert, or delete.
	RowsAffected() (int64, error)
}

// =====================================
// Provider Interfaces
// =====================================

// Provider owns the connection pool of one datasource and acts as both its
// connection factory and its session factory. Each ORM adapter (GORM, Bun)
// implements this interface.
type Provider interface {
	ConnFactory
	SessionFactory

	// Health checks if the database is reachable.
	Health(ctx context.Context) error

	// Close shuts down the pool. Should be called during application shutdown.
	Close() error

	// ProviderInfo returns metadata about this provider.
	ProviderInfo() ProviderInfo
}

// ProviderFactory creates providers from a datasource configuration.
type ProviderFactory interface {
	Create(config Config) (Provider, error)
	SupportedDrivers() []string
}
