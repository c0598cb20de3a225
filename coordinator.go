package gpatx

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithIsolationLevel sets the isolation level enforced on every connection
// the coordinator opens. The default is repeatable read.
func WithIsolationLevel(level sql.IsolationLevel) Option {
	return func(c *Coordinator) {
		c.isolation = level
	}
}

// WithLogger sets the logger used for lifecycle events
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCreationStacks makes every participant record the stack of the call
// that opened it, retrievable through SessionTransaction.CreationDetails.
func WithCreationStacks(enabled bool) Option {
	return func(c *Coordinator) {
		c.storeCreationStacks = enabled
	}
}

// Coordinator is a composite transaction spanning any number of datasources.
// A participant is opened the first time a datasource is requested, and
// Commit, Rollback and Close are applied to every participant opened so far.
//
// A Coordinator represents one unit of work and must not be used from
// several goroutines at once.
type Coordinator struct {
	registry            *Registry
	participants        map[string]*SessionTransaction
	order               []string
	isolation           sql.IsolationLevel
	storeCreationStacks bool
	closed              bool
	logger              *zap.Logger
}

// NewCoordinator creates a coordinator resolving datasources through registry
func NewCoordinator(registry *Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:     registry,
		participants: make(map[string]*SessionTransaction),
		isolation:    DefaultIsolationLevel,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conn returns the connection of the named datasource, opening a participant
// on first use. Every call leaves the participant's native transaction
// started.
func (c *Coordinator) Conn(ctx context.Context, datasource string) (Conn, error) {
	st, err := c.participant(ctx, datasource)
	if err != nil {
		return nil, err
	}
	return st.Conn(), nil
}

// Session returns the session of the named datasource, opening a participant
// on first use.
func (c *Coordinator) Session(ctx context.Context, datasource string) (Session, error) {
	st, err := c.participant(ctx, datasource)
	if err != nil {
		return nil, err
	}
	return st.Session(), nil
}

// Participant returns the already opened participant for datasource
func (c *Coordinator) Participant(datasource string) (*SessionTransaction, bool) {
	st, ok := c.participants[datasource]
	return st, ok
}

// Opened returns the names of the opened datasources in the order they were opened
func (c *Coordinator) Opened() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Commit commits every participant. A failing participant does not stop the
// others from being committed. A closed coordinator cannot commit.
func (c *Coordinator) Commit() error {
	if c.closed {
		return c.closedError("commit")
	}
	return c.finalize("commit", (*SessionTransaction).Commit)
}

// Rollback rolls back every participant. A failing participant does not stop
// the others from being rolled back.
func (c *Coordinator) Rollback() error {
	if c.closed {
		return c.closedError("rollback")
	}
	return c.finalize("rollback", (*SessionTransaction).Rollback)
}

// Close closes every participant and releases their connections. The
// coordinator cannot open participants afterwards. Closing twice is a no-op.
func (c *Coordinator) Close() error {
	if c.closed {
		return nil
	}
	err := c.finalize("close", (*SessionTransaction).Close)

	c.participants = make(map[string]*SessionTransaction)
	c.order = nil
	c.closed = true
	return err
}

func (c *Coordinator) finalize(operation string, fn func(*SessionTransaction) error) error {
	var failures []Error
	for _, name := range c.order {
		if err := fn(c.participants[name]); err != nil {
			c.logger.Warn("participant "+operation+" failed", zap.String("datasource", name), zap.Error(err))
			failures = append(failures, asError(err, ErrorTypeTransaction, name, operation+" failed"))
		}
	}
	return combineFailures(operation, failures)
}

func (c *Coordinator) closedError(operation string) error {
	return NewError(ErrorTypeConfiguration, "cannot "+operation+": coordinator is closed")
}

func (c *Coordinator) participant(ctx context.Context, datasource string) (*SessionTransaction, error) {
	if c.closed {
		return nil, newDatasourceError(ErrorTypeConfiguration, datasource, "coordinator is closed", nil)
	}
	if st, ok := c.participants[datasource]; ok {
		if err := st.EnsureStarted(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
	return c.open(ctx, datasource)
}

func (c *Coordinator) open(ctx context.Context, datasource string) (*SessionTransaction, error) {
	ds, err := c.registry.Lookup(datasource)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("opening datasource", zap.String("datasource", datasource))
	conn, err := ds.Conns.Conn(ctx)
	if err != nil {
		return nil, newDatasourceError(ErrorTypeConnection, datasource, "failed to get connection from datasource", err)
	}

	if err := c.configure(conn); err != nil {
		return nil, newDatasourceError(ErrorTypeConfiguration, datasource, "failed to configure the connection", errors.Join(err, conn.Close()))
	}

	session, err := ds.Sessions.OpenSession(ctx, conn)
	if err != nil {
		return nil, newDatasourceError(ErrorTypeConfiguration, datasource, "failed to open session", errors.Join(err, conn.Close()))
	}

	st, err := newSessionTransaction(ctx, datasource, session, conn, c.storeCreationStacks, c.logger)
	if err != nil {
		if cleanupErr := errors.Join(session.Close(), conn.Close()); cleanupErr != nil {
			c.logger.Warn("releasing failed participant", zap.String("datasource", datasource), zap.Error(cleanupErr))
		}
		return nil, err
	}

	c.participants[datasource] = st
	c.order = append(c.order, datasource)
	return st, nil
}

func (c *Coordinator) configure(conn Conn) error {
	level, err := conn.IsolationLevel()
	if err != nil {
		return err
	}
	if level != c.isolation {
		if err := conn.SetIsolationLevel(c.isolation); err != nil {
			return err
		}
	}
	return conn.SetAutoCommit(false)
}
