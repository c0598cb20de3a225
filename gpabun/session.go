package gpabun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lemmego/gpatx"
	"github.com/uptrace/bun"
)

// SessionFactory opens Bun sessions bound to an explicit connection
type SessionFactory struct {
	db *bun.DB
}

// NewSessionFactory creates a session factory on top of db. Queries are
// built with the dialect of db and run on the connection passed to
// OpenSession.
func NewSessionFactory(db *bun.DB) *SessionFactory {
	return &SessionFactory{db: db}
}

// OpenSession implements gpatx.SessionFactory
func (f *SessionFactory) OpenSession(ctx context.Context, conn gpatx.Conn) (gpatx.Session, error) {
	sqlConn, ok := conn.(gpatx.SQLBackedConn)
	if !ok {
		return nil, gpatx.NewError(gpatx.ErrorTypeConfiguration, fmt.Sprintf("connection of type %T is not backed by database/sql", conn))
	}
	return &Session{
		db:      f.db,
		conn:    sqlConn,
		tracked: gpatx.NewEntitySet(),
	}, nil
}

// Session implements gpatx.Session using Bun. Writes go straight to the
// database so Flush has nothing to push.
type Session struct {
	db      *bun.DB
	conn    gpatx.SQLBackedConn
	tx      *sql.Tx
	tracked *gpatx.EntitySet
	closed  bool
}

// current returns the handle statements must run on
func (s *Session) current() (bun.IConn, error) {
	if s.closed {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "session is closed")
	}
	if s.tx != nil {
		return s.tx, nil
	}
	if !s.conn.AutoCommit() {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "auto-commit is disabled and no transaction is active")
	}
	return s.conn.Raw(), nil
}

// Get implements gpatx.Session
func (s *Session) Get(ctx context.Context, dest interface{}, id interface{}) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	err = s.db.NewSelect().Conn(conn).Model(dest).Where("?TablePKs = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return convertBunError(err)
	}
	s.Attach(dest)
	return nil
}

// Save implements gpatx.Session
func (s *Session) Save(ctx context.Context, entity interface{}) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Conn(conn).Model(entity).Exec(ctx); err != nil {
		return convertBunError(err)
	}
	s.Attach(entity)
	return nil
}

// SaveOrUpdate implements gpatx.Session
func (s *Session) SaveOrUpdate(ctx context.Context, entity interface{}) error {
	conn, err := s.current()
	if err != nil {
		return err
	}

	exists, err := s.db.NewSelect().Conn(conn).Model(entity).WherePK().Exists(ctx)
	if err != nil {
		return convertBunError(err)
	}
	if exists {
		_, err = s.db.NewUpdate().Conn(conn).Model(entity).WherePK().Exec(ctx)
	} else {
		_, err = s.db.NewInsert().Conn(conn).Model(entity).Exec(ctx)
	}
	if err != nil {
		return convertBunError(err)
	}
	s.Attach(entity)
	return nil
}

// Delete implements gpatx.Session
func (s *Session) Delete(ctx context.Context, entity interface{}) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	result, err := s.db.NewDelete().Conn(conn).Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return convertBunError(err)
	}
	s.tracked.Remove(entity)
	if n, _ := result.RowsAffected(); n == 0 {
		return gpatx.NewError(gpatx.ErrorTypeNotFound, "no row matched the deleted entity")
	}
	return nil
}

// DeleteWhere implements gpatx.Session
func (s *Session) DeleteWhere(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	conn, err := s.current()
	if err != nil {
		return 0, err
	}
	result, err := s.db.NewDelete().Conn(conn).Model(model).Where("? = ?", bun.Ident(column), value).Exec(ctx)
	if err != nil {
		return 0, convertBunError(err)
	}
	return result.RowsAffected()
}

// Count implements gpatx.Session
func (s *Session) Count(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	conn, err := s.current()
	if err != nil {
		return 0, err
	}
	count, err := s.db.NewSelect().Conn(conn).Model(model).Where("? = ?", bun.Ident(column), value).Count(ctx)
	if err != nil {
		return 0, convertBunError(err)
	}
	return int64(count), nil
}

// FindAll implements gpatx.Session
func (s *Session) FindAll(ctx context.Context, dest interface{}, orderColumn string) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	err = s.db.NewSelect().Conn(conn).Model(dest).OrderExpr("? ASC", bun.Ident(orderColumn)).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return convertBunError(err)
	}
	return nil
}

// Query implements gpatx.Session
func (s *Session) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	conn, err := s.current()
	if err != nil {
		return err
	}
	return convertBunError(s.db.NewRaw(query, args...).Conn(conn).Scan(ctx, dest))
}

// Exec implements gpatx.Session
func (s *Session) Exec(ctx context.Context, query string, args ...interface{}) (gpatx.Result, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	result, err := s.db.NewRaw(query, args...).Conn(conn).Exec(ctx)
	if err != nil {
		return nil, convertBunError(err)
	}
	return result, nil
}

// Contains implements gpatx.Session
func (s *Session) Contains(entity interface{}) bool {
	return s.tracked.Contains(entity)
}

// Attach implements gpatx.Session
func (s *Session) Attach(entity interface{}) {
	s.tracked.Add(entity)
}

// Flush implements gpatx.Session
func (s *Session) Flush(ctx context.Context) error {
	if s.closed {
		return gpatx.NewError(gpatx.ErrorTypeTransaction, "session is closed")
	}
	return nil
}

// BeginTransaction implements gpatx.Session
func (s *Session) BeginTransaction(ctx context.Context) (gpatx.NativeTx, error) {
	if s.closed {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "session is closed")
	}
	if s.tx != nil {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "a transaction is already active")
	}

	tx, err := s.conn.Raw().BeginTx(ctx, s.conn.TxOptions())
	if err != nil {
		return nil, convertBunError(err)
	}
	s.tx = tx
	return &Transaction{session: s, tx: tx}, nil
}

// Close implements gpatx.Session
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.tracked = nil

	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return convertBunError(err)
	}
	return nil
}

// =====================================
// Transaction Implementation
// =====================================

// Transaction is the native transaction of a Bun session
type Transaction struct {
	session *Session
	tx      *sql.Tx
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	defer t.release()
	return convertBunError(t.tx.Commit())
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	defer t.release()
	return convertBunError(t.tx.Rollback())
}

func (t *Transaction) release() {
	if t.session.tx == t.tx {
		t.session.tx = nil
	}
}
