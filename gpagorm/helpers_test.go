package gpagorm

import (
	"database/sql"
	"errors"
)

type errString string

func (e errString) Error() string { return string(e) }

// fakeConn is a connection that is not backed by database/sql
type fakeConn struct{}

func (c *fakeConn) IsolationLevel() (sql.IsolationLevel, error) { return sql.LevelDefault, nil }
func (c *fakeConn) SetIsolationLevel(sql.IsolationLevel) error   { return nil }
func (c *fakeConn) AutoCommit() bool                             { return true }
func (c *fakeConn) SetAutoCommit(bool) error                     { return nil }
func (c *fakeConn) Close() error                                 { return errors.New("not pooled") }
