package gpagorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lemmego/gpatx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionFactory opens GORM sessions bound to an explicit connection
type SessionFactory struct {
	db *gorm.DB
}

// NewSessionFactory creates a session factory on top of db. Only the dialect
// and configuration of db are used; statements run on the connection passed
// to OpenSession.
func NewSessionFactory(db *gorm.DB) *SessionFactory {
	return &SessionFactory{db: db}
}

// OpenSession implements gpatx.SessionFactory
func (f *SessionFactory) OpenSession(ctx context.Context, conn gpatx.Conn) (gpatx.Session, error) {
	sqlConn, ok := conn.(gpatx.SQLBackedConn)
	if !ok {
		return nil, gpatx.NewError(gpatx.ErrorTypeConfiguration, fmt.Sprintf("connection of type %T is not backed by database/sql", conn))
	}

	base := f.db.Session(&gorm.Session{
		NewDB:                  true,
		Context:                ctx,
		SkipDefaultTransaction: true,
	})
	base.Statement.ConnPool = sqlConn.Raw()

	return &Session{
		base:    base,
		conn:    sqlConn,
		tracked: gpatx.NewEntitySet(),
	}, nil
}

// Session implements gpatx.Session using GORM. Writes go straight to the
// database so Flush has nothing to push.
type Session struct {
	base    *gorm.DB
	conn    gpatx.SQLBackedConn
	tx      *gorm.DB
	tracked *gpatx.EntitySet
	closed  bool
}

// current returns the handle statements must run on
func (s *Session) current(ctx context.Context) (*gorm.DB, error) {
	if s.closed {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "session is closed")
	}
	if s.tx != nil {
		return s.tx.WithContext(ctx), nil
	}
	if !s.conn.AutoCommit() {
		return nil, gpatx.NewError(gpatx.ErrorTypeTransaction, "auto-commit is disabled and no transaction is active")
	}
	return s.base.WithContext(ctx), nil
}

// Get implements gpatx.Session
func (s *Session) Get(ctx context.Context, dest interface{}, id interface{}) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	if err := db.Where(primaryKeyEquals(id)).First(dest).Error; err != nil {
		return convertGormError(err)
	}
	s.Attach(dest)
	return nil
}

// Save implements gpatx.Session
func (s *Session) Save(ctx context.Context, entity interface{}) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(entity).Error; err != nil {
		return convertGormError(err)
	}
	s.Attach(entity)
	return nil
}

// SaveOrUpdate implements gpatx.Session
func (s *Session) SaveOrUpdate(ctx context.Context, entity interface{}) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	if err := db.Save(entity).Error; err != nil {
		return convertGormError(err)
	}
	s.Attach(entity)
	return nil
}

// Delete implements gpatx.Session
func (s *Session) Delete(ctx context.Context, entity interface{}) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	result := db.Delete(entity)
	if result.Error != nil {
		return convertGormError(result.Error)
	}
	s.tracked.Remove(entity)
	if result.RowsAffected == 0 {
		return gpatx.NewError(gpatx.ErrorTypeNotFound, "no row matched the deleted entity")
	}
	return nil
}

// DeleteWhere implements gpatx.Session
func (s *Session) DeleteWhere(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	db, err := s.current(ctx)
	if err != nil {
		return 0, err
	}
	result := db.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).Delete(model)
	if result.Error != nil {
		return 0, convertGormError(result.Error)
	}
	return result.RowsAffected, nil
}

// Count implements gpatx.Session
func (s *Session) Count(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	db, err := s.current(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(model).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).Count(&count).Error; err != nil {
		return 0, convertGormError(err)
	}
	return count, nil
}

// FindAll implements gpatx.Session
func (s *Session) FindAll(ctx context.Context, dest interface{}, orderColumn string) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	order := clause.OrderByColumn{Column: clause.Column{Name: orderColumn}}
	if err := db.Order(order).Find(dest).Error; err != nil {
		return convertGormError(err)
	}
	return nil
}

// Query implements gpatx.Session
func (s *Session) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	db, err := s.current(ctx)
	if err != nil {
		return err
	}
	if err := db.Raw(query, args...).Scan(dest).Error; err != nil {
		return convertGormError(err)
	}
	return nil
}

// Exec implements gpatx.Session
func (s *Session) Exec(ctx context.Context, query string, args ...interface{}) (gpatx.Result, error) {
	db, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	result := db.Exec(query, args...)
	if result.Error != nil {
		return nil, convertGormError(result.Error)
	}
	return &gormResult{rowsAffected: result.RowsAffected}, nil
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

	tx := s.base.WithContext(ctx).Begin(s.conn.TxOptions())
	if tx.Error != nil {
		return nil, convertGormError(tx.Error)
	}
	s.tx = tx
	return &nativeTx{session: s, tx: tx}, nil
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
	err := s.tx.Rollback().Error
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return convertGormError(err)
	}
	return nil
}

// nativeTx is the GORM transaction of a session
type nativeTx struct {
	session *Session
	tx      *gorm.DB
}

// Commit implements gpatx.NativeTx
func (t *nativeTx) Commit() error {
	defer t.release()
	return convertGormError(t.tx.Commit().Error)
}

// Rollback implements gpatx.NativeTx
func (t *nativeTx) Rollback() error {
	defer t.release()
	return convertGormError(t.tx.Rollback().Error)
}

func (t *nativeTx) release() {
	if t.session.tx == t.tx {
		t.session.tx = nil
	}
}

// gormResult implements gpatx.Result
type gormResult struct {
	rowsAffected int64
}

func (r *gormResult) LastInsertId() (int64, error) {
	return 0, gpatx.NewError(gpatx.ErrorTypeUnsupported, "LastInsertId is not available through GORM")
}

func (r *gormResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// primaryKeyEquals matches the primary key of the statement's model
func primaryKeyEquals(id interface{}) clause.Expression {
	return clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: clause.PrimaryKey},
		Value:  id,
	}
}
