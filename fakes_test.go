package gpatx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
)

// fakeConn records how the coordinator configures a connection
type fakeConn struct {
	isolation     sql.IsolationLevel
	autoCommit    bool
	setIsolation  int
	closeCalls    int
	isolationErr  error
	autoCommitErr error
	closeErr      error
}

func newFakeConn() *fakeConn {
	return &fakeConn{isolation: sql.LevelReadCommitted, autoCommit: true}
}

func (c *fakeConn) IsolationLevel() (sql.IsolationLevel, error) {
	return c.isolation, c.isolationErr
}

func (c *fakeConn) SetIsolationLevel(level sql.IsolationLevel) error {
	c.setIsolation++
	c.isolation = level
	return nil
}

func (c *fakeConn) AutoCommit() bool { return c.autoCommit }

func (c *fakeConn) SetAutoCommit(enabled bool) error {
	if c.autoCommitErr != nil {
		return c.autoCommitErr
	}
	c.autoCommit = enabled
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls++
	return c.closeErr
}

// fakeTx records native commits and rollbacks
type fakeTx struct {
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (t *fakeTx) Commit() error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback() error {
	t.rollbacks++
	return t.rollbackErr
}

// fakeSession stores entities in memory keyed by their identifier and
// records native transactions.
type fakeSession struct {
	conn       Conn
	txs        []*fakeTx
	closeCalls int
	beginErr   error
	closeErr   error
	commitErr  error
	opErr      error

	rows     map[interface{}]interface{}
	tracked  map[interface{}]bool
	queried  []string
	seqValue int64
}

func newFakeSession(conn Conn) *fakeSession {
	return &fakeSession{
		conn:    conn,
		rows:    make(map[interface{}]interface{}),
		tracked: make(map[interface{}]bool),
	}
}

func (s *fakeSession) begins() int { return len(s.txs) }

func (s *fakeSession) lastTx() *fakeTx {
	if len(s.txs) == 0 {
		return nil
	}
	return s.txs[len(s.txs)-1]
}

func (s *fakeSession) key(entity interface{}) interface{} {
	id := entity.(Identifiable).Identifier()
	if n, ok := id.(int); ok {
		return int64(n)
	}
	return id
}

func (s *fakeSession) Get(ctx context.Context, dest interface{}, id interface{}) error {
	if s.opErr != nil {
		return s.opErr
	}
	row, ok := s.rows[id]
	if !ok {
		return NewError(ErrorTypeNotFound, "record not found")
	}
	reflect.ValueOf(dest).Elem().Set(reflect.ValueOf(row).Elem())
	s.tracked[dest] = true
	return nil
}

func (s *fakeSession) Save(ctx context.Context, entity interface{}) error {
	if s.opErr != nil {
		return s.opErr
	}
	s.rows[s.key(entity)] = entity
	s.tracked[entity] = true
	return nil
}

func (s *fakeSession) SaveOrUpdate(ctx context.Context, entity interface{}) error {
	return s.Save(ctx, entity)
}

func (s *fakeSession) Delete(ctx context.Context, entity interface{}) error {
	if !s.tracked[entity] {
		return errors.New("entity is not attached")
	}
	delete(s.rows, s.key(entity))
	delete(s.tracked, entity)
	return nil
}

func (s *fakeSession) DeleteWhere(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	if _, ok := s.rows[value]; !ok {
		return 0, nil
	}
	delete(s.rows, value)
	return 1, nil
}

func (s *fakeSession) Count(ctx context.Context, model interface{}, column string, value interface{}) (int64, error) {
	if s.opErr != nil {
		return 0, s.opErr
	}
	s.queried = append(s.queried, fmt.Sprintf("%s=%v(%T)", column, value, value))
	if _, ok := s.rows[value]; ok {
		return 1, nil
	}
	return 0, nil
}

func (s *fakeSession) FindAll(ctx context.Context, dest interface{}, orderColumn string) error {
	slice := reflect.ValueOf(dest).Elem()
	for i := int64(0); i <= 100; i++ {
		if row, ok := s.rows[i]; ok {
			slice.Set(reflect.Append(slice, reflect.ValueOf(row)))
		}
	}
	return nil
}

func (s *fakeSession) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	s.queried = append(s.queried, query)
	if s.opErr != nil {
		return s.opErr
	}
	s.seqValue++
	*dest.(*int64) = s.seqValue
	return nil
}

func (s *fakeSession) Exec(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return nil, NewError(ErrorTypeUnsupported, "exec")
}

func (s *fakeSession) Contains(entity interface{}) bool { return s.tracked[entity] }

func (s *fakeSession) Attach(entity interface{}) { s.tracked[entity] = true }

func (s *fakeSession) Flush(ctx context.Context) error { return s.opErr }

func (s *fakeSession) BeginTransaction(ctx context.Context) (NativeTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx := &fakeTx{commitErr: s.commitErr}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return s.closeErr
}

// fakeDatasource is both factories of one datasource and hands out a fixed
// connection and session, counting how often each was requested.
type fakeDatasource struct {
	conn        *fakeConn
	session     *fakeSession
	connCalls   int
	openCalls   int
	connErr     error
	openErr     error
	health      error
	closed      int
	closeErr    error
	providerTag string
}

func newFakeDatasource() *fakeDatasource {
	conn := newFakeConn()
	return &fakeDatasource{conn: conn, session: newFakeSession(conn)}
}

func (d *fakeDatasource) Conn(ctx context.Context) (Conn, error) {
	d.connCalls++
	if d.connErr != nil {
		return nil, d.connErr
	}
	return d.conn, nil
}

func (d *fakeDatasource) OpenSession(ctx context.Context, conn Conn) (Session, error) {
	d.openCalls++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.session, nil
}

func (d *fakeDatasource) Health(ctx context.Context) error { return d.health }

func (d *fakeDatasource) Close() error {
	d.closed++
	return d.closeErr
}

func (d *fakeDatasource) ProviderInfo() ProviderInfo {
	return ProviderInfo{Name: "fake" + d.providerTag, DatabaseType: DatabaseTypeSQL, Dialect: DialectPgSQL}
}

// fakeFactory creates fake datasources for provider registration tests
type fakeFactory struct {
	created []Config
	err     error
}

func (f *fakeFactory) Create(config Config) (Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, config)
	return newFakeDatasource(), nil
}

func (f *fakeFactory) SupportedDrivers() []string { return []string{"fake"} }

// newTestRegistry registers a fake datasource for each name
func newTestRegistry(names ...string) (*Registry, map[string]*fakeDatasource) {
	registry := NewRegistry()
	fakes := make(map[string]*fakeDatasource)
	for _, name := range names {
		ds := newFakeDatasource()
		fakes[name] = ds
		registry.Register(name, ds, ds)
	}
	return registry, fakes
}
