package gpatx

import (
	"context"
	"errors"
	"runtime/debug"

	"go.uber.org/zap"
)

const creationStackUnavailable = "Creation stacks are not stored."

// SessionTransaction binds one connection and one session of a single
// datasource into one native transaction unit. It is created by a
// Coordinator and must not be shared between goroutines.
type SessionTransaction struct {
	datasource    string
	session       Session
	conn          Conn
	tx            NativeTx
	started       bool
	closed        bool
	creationStack []byte
	logger        *zap.Logger
}

func newSessionTransaction(ctx context.Context, datasource string, session Session, conn Conn, storeCreationStack bool, logger *zap.Logger) (*SessionTransaction, error) {
	logger.Debug("creating session transaction", zap.String("datasource", datasource))

	st := &SessionTransaction{
		datasource: datasource,
		session:    session,
		conn:       conn,
		logger:     logger,
	}
	if storeCreationStack {
		st.creationStack = debug.Stack()
	}

	if err := st.EnsureStarted(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Datasource returns the name of the datasource this transaction belongs to
func (st *SessionTransaction) Datasource() string {
	return st.datasource
}

// Session returns the bound session
func (st *SessionTransaction) Session() Session {
	return st.session
}

// Conn returns the bound connection
func (st *SessionTransaction) Conn() Conn {
	return st.conn
}

// Started reports whether a native transaction is active
func (st *SessionTransaction) Started() bool {
	return st.started
}

// EnsureStarted begins a native transaction unless one is already active
func (st *SessionTransaction) EnsureStarted(ctx context.Context) error {
	if st.closed {
		return st.closedError()
	}
	if st.started {
		return nil
	}

	tx, err := st.session.BeginTransaction(ctx)
	if err != nil {
		return newDatasourceError(ErrorTypeTransaction, st.datasource, "failed to begin transaction", err)
	}
	st.tx = tx
	st.started = true
	return nil
}

// Commit commits the native transaction. Without an active transaction it
// does nothing. The transaction counts as finished afterwards even if the
// commit fails.
func (st *SessionTransaction) Commit() error {
	if st.closed {
		return st.closedError()
	}
	if !st.started {
		return nil
	}
	defer func() { st.started = false }()

	st.logger.Debug("committing session transaction", zap.String("datasource", st.datasource))
	if err := st.tx.Commit(); err != nil {
		return newDatasourceError(ErrorTypeTransaction, st.datasource, "failed to commit", err)
	}
	return nil
}

// Rollback rolls back the native transaction. Without an active transaction
// it does nothing. The transaction counts as finished afterwards even if the
// rollback fails.
func (st *SessionTransaction) Rollback() error {
	if st.closed {
		return st.closedError()
	}
	if !st.started {
		return nil
	}
	defer func() { st.started = false }()

	st.logger.Debug("rolling back session transaction", zap.String("datasource", st.datasource))
	if err := st.tx.Rollback(); err != nil {
		return newDatasourceError(ErrorTypeTransaction, st.datasource, "failed to rollback", err)
	}
	return nil
}

// Close closes the session and then the connection. Both are attempted even
// when the first fails.
func (st *SessionTransaction) Close() error {
	if st.closed {
		return st.closedError()
	}
	defer func() {
		st.started = false
		st.closed = true
	}()

	st.logger.Debug("closing session transaction", zap.String("datasource", st.datasource))
	sessionErr := st.session.Close()
	connErr := st.conn.Close()
	if err := errors.Join(sessionErr, connErr); err != nil {
		return newDatasourceError(ErrorTypeTransaction, st.datasource, "failed to close", err)
	}
	return nil
}

// CreationDetails returns the stack of the call that created this
// transaction, when creation stacks are stored.
func (st *SessionTransaction) CreationDetails() string {
	if st.creationStack == nil {
		return creationStackUnavailable
	}
	return string(st.creationStack)
}

func (st *SessionTransaction) closedError() error {
	return newDatasourceError(ErrorTypeTransaction, st.datasource, "session transaction is closed", nil)
}
