package gpatx

import (
	"context"
	"database/sql"
)

// =====================================
// database/sql Connection Adapter
// =====================================

// SQLConn adapts a *sql.Conn to Conn.
//
// database/sql has no connection-level isolation or auto-commit switch, so
// both are recorded here and honoured by the sessions bound to the
// connection: the isolation level is passed through TxOptions when a native
// transaction begins.
type SQLConn struct {
	conn       *sql.Conn
	isolation  sql.IsolationLevel
	autoCommit bool
	closed     bool
}

// NewSQLConn wraps a connection checked out of a *sql.DB
func NewSQLConn(conn *sql.Conn) *SQLConn {
	return &SQLConn{
		conn:       conn,
		isolation:  sql.LevelDefault,
		autoCommit: true,
	}
}

// Raw returns the wrapped connection
func (c *SQLConn) Raw() *sql.Conn {
	return c.conn
}

// TxOptions returns the options native transactions on this connection must use
func (c *SQLConn) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: c.isolation}
}

// IsolationLevel implements Conn
func (c *SQLConn) IsolationLevel() (sql.IsolationLevel, error) {
	if c.closed {
		return sql.LevelDefault, sql.ErrConnDone
	}
	return c.isolation, nil
}

// SetIsolationLevel implements Conn
func (c *SQLConn) SetIsolationLevel(level sql.IsolationLevel) error {
	if c.closed {
		return sql.ErrConnDone
	}
	c.isolation = level
	return nil
}

// AutoCommit implements Conn
func (c *SQLConn) AutoCommit() bool {
	return c.autoCommit
}

// SetAutoCommit implements Conn
func (c *SQLConn) SetAutoCommit(enabled bool) error {
	if c.closed {
		return sql.ErrConnDone
	}
	c.autoCommit = enabled
	return nil
}

// Close implements Conn
func (c *SQLConn) Close() error {
	c.closed = true
	return c.conn.Close()
}

// SQLBackedConn is implemented by connections that expose a *sql.Conn.
// ORM adapters require it to bind sessions.
type SQLBackedConn interface {
	Conn
	Raw() *sql.Conn
	TxOptions() *sql.TxOptions
}

// DBConnFactory hands out connections from a *sql.DB pool
type DBConnFactory struct {
	DB *sql.DB
}

// Conn implements ConnFactory
func (f DBConnFactory) Conn(ctx context.Context) (Conn, error) {
	conn, err := f.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return NewSQLConn(conn), nil
}
