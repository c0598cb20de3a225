package gpatx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCoordinatorIsLazy(t *testing.T) {
	registry, fakes := newTestRegistry("orders", "billing")
	tx := NewCoordinator(registry)

	_, err := tx.Session(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, 1, fakes["orders"].connCalls)
	assert.Equal(t, 0, fakes["billing"].connCalls)
	assert.Equal(t, 0, fakes["billing"].openCalls)
	assert.Equal(t, 0, fakes["billing"].session.begins())
	assert.Equal(t, []string{"orders"}, tx.Opened())
}

func TestCoordinatorOrdersScenario(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("orders")
	orders := fakes["orders"]
	tx := NewCoordinator(registry)

	conn, err := tx.Conn(ctx, "orders")
	require.NoError(t, err)
	assert.Same(t, orders.conn, conn)
	assert.False(t, orders.conn.autoCommit)
	assert.Equal(t, sql.LevelRepeatableRead, orders.conn.isolation)
	assert.Equal(t, 1, orders.session.begins())

	session, err := tx.Session(ctx, "orders")
	require.NoError(t, err)
	assert.Same(t, orders.session, session)
	assert.Equal(t, 1, orders.session.begins(), "no new transaction on a second request")
	assert.Equal(t, 1, orders.connCalls)
	assert.Equal(t, 1, orders.openCalls)

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, orders.session.lastTx().commits)

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, orders.session.lastTx().commits, "second commit is a no-op")
}

func TestCoordinatorSecondRequestRestartsFinishedTransaction(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("orders")
	tx := NewCoordinator(registry)

	_, err := tx.Session(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	participant, ok := tx.Participant("orders")
	require.True(t, ok)
	assert.False(t, participant.Started())

	_, err = tx.Conn(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, participant.Started())
	assert.Equal(t, 2, fakes["orders"].session.begins())
}

func TestCoordinatorSkipsRedundantIsolationChange(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	fakes["orders"].conn.isolation = sql.LevelSerializable

	tx := NewCoordinator(registry, WithIsolationLevel(sql.LevelSerializable))
	_, err := tx.Conn(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, 0, fakes["orders"].conn.setIsolation)
	assert.False(t, fakes["orders"].conn.autoCommit)
}

func TestCoordinatorSetsIsolationWhenDifferent(t *testing.T) {
	registry, fakes := newTestRegistry("orders")

	tx := NewCoordinator(registry)
	_, err := tx.Conn(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, 1, fakes["orders"].conn.setIsolation)
	assert.Equal(t, DefaultIsolationLevel, fakes["orders"].conn.isolation)
}

func TestCoordinatorRollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("orders")
	tx := NewCoordinator(registry)

	_, err := tx.Session(ctx, "orders")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	native := fakes["orders"].session.lastTx()
	assert.Equal(t, 1, native.commits)
	assert.Equal(t, 0, native.rollbacks)
}

func TestCoordinatorUnknownDatasource(t *testing.T) {
	registry, _ := newTestRegistry()
	tx := NewCoordinator(registry)

	_, err := tx.Session(context.Background(), "ghost")
	assert.True(t, IsConfiguration(err))
	assert.ErrorIs(t, err, ErrDatasourceNotFound)
	assert.Empty(t, tx.Opened())
}

func TestCoordinatorConnectionFailure(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	cause := errors.New("pool exhausted")
	fakes["orders"].connErr = cause

	tx := NewCoordinator(registry)
	_, err := tx.Conn(context.Background(), "orders")

	assert.True(t, IsConnection(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[orders]")
	assert.Equal(t, 0, fakes["orders"].openCalls)
}

func TestCoordinatorConfigurationFailureReleasesConnection(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	fakes["orders"].conn.autoCommitErr = errors.New("read-only connection")

	tx := NewCoordinator(registry)
	_, err := tx.Conn(context.Background(), "orders")

	assert.True(t, IsConfiguration(err))
	assert.Equal(t, 1, fakes["orders"].conn.closeCalls)
	assert.Equal(t, 0, fakes["orders"].openCalls)
	assert.Empty(t, tx.Opened())
}

func TestCoordinatorSessionFailureReleasesConnection(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	fakes["orders"].openErr = errors.New("mapping error")

	tx := NewCoordinator(registry)
	_, err := tx.Session(context.Background(), "orders")

	assert.True(t, IsConfiguration(err))
	assert.Equal(t, 1, fakes["orders"].conn.closeCalls)
	assert.Empty(t, tx.Opened())
}

func TestCoordinatorBeginFailureReleasesParticipant(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	fakes["orders"].session.beginErr = errors.New("cannot begin")

	tx := NewCoordinator(registry)
	_, err := tx.Session(context.Background(), "orders")

	assert.True(t, IsTransaction(err))
	assert.Equal(t, 1, fakes["orders"].session.closeCalls)
	assert.Equal(t, 1, fakes["orders"].conn.closeCalls)
	_, ok := tx.Participant("orders")
	assert.False(t, ok)
}

func TestCoordinatorCloseAttemptsEveryParticipant(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("a", "b")
	fakes["a"].session.closeErr = errors.New("a refuses to close")

	tx := NewCoordinator(registry)
	_, err := tx.Session(ctx, "a")
	require.NoError(t, err)
	_, err = tx.Session(ctx, "b")
	require.NoError(t, err)

	err = tx.Close()
	require.Error(t, err)
	assert.True(t, IsTransaction(err))
	assert.Contains(t, err.Error(), "[a]")

	assert.Equal(t, 1, fakes["a"].session.closeCalls)
	assert.Equal(t, 1, fakes["a"].conn.closeCalls, "connection closed even though the session failed")
	assert.Equal(t, 1, fakes["b"].session.closeCalls)
	assert.Equal(t, 1, fakes["b"].conn.closeCalls)
}

func TestCoordinatorCommitAggregatesFailures(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("a", "b", "c")
	fakes["a"].session.commitErr = errors.New("a: deadlock")
	fakes["c"].session.commitErr = errors.New("c: disk full")

	core, logs := observer.New(zap.WarnLevel)
	tx := NewCoordinator(registry, WithLogger(zap.New(core)))
	for _, name := range []string{"a", "b", "c"} {
		_, err := tx.Session(ctx, name)
		require.NoError(t, err)
	}

	err := tx.Commit()
	require.Error(t, err)
	assert.True(t, IsAggregate(err))

	var agg AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "commit", agg.Operation)
	assert.Equal(t, []string{"a", "c"}, agg.Datasources())
	assert.Equal(t, 1, fakes["b"].session.lastTx().commits, "b is committed despite a failing first")
	assert.Equal(t, 2, logs.Len())

	// A failed commit still finishes the participant
	participant, _ := tx.Participant("a")
	assert.False(t, participant.Started())
	require.NoError(t, tx.Rollback())
	assert.Equal(t, 0, fakes["a"].session.lastTx().rollbacks)
}

func TestCoordinatorCloseClosesOnceAfterFailedRollback(t *testing.T) {
	ctx := context.Background()
	registry, fakes := newTestRegistry("orders")

	tx := NewCoordinator(registry)
	_, err := tx.Session(ctx, "orders")
	require.NoError(t, err)
	fakes["orders"].session.lastTx().rollbackErr = errors.New("connection reset")

	assert.True(t, IsTransaction(tx.Rollback()))
	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())

	assert.Equal(t, 1, fakes["orders"].session.closeCalls)
	assert.Equal(t, 1, fakes["orders"].conn.closeCalls)
}

func TestCoordinatorRejectsUseAfterClose(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	tx := NewCoordinator(registry)
	require.NoError(t, tx.Close())

	_, err := tx.Conn(context.Background(), "orders")
	assert.True(t, IsConfiguration(err))
	assert.Equal(t, 0, fakes["orders"].connCalls)
}

func TestCoordinatorRefusesFinalizeAfterClose(t *testing.T) {
	registry, fakes := newTestRegistry("orders")
	tx := NewCoordinator(registry)
	_, err := tx.Session(context.Background(), "orders")
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	err = tx.Commit()
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "coordinator is closed")
	assert.True(t, IsConfiguration(tx.Rollback()))

	native := fakes["orders"].session.lastTx()
	assert.Equal(t, 0, native.commits)
	assert.Equal(t, 0, native.rollbacks)
	assert.NoError(t, tx.Close())
}

func TestCoordinatorCreationStacks(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry("orders", "billing")

	tx := NewCoordinator(registry, WithCreationStacks(true))
	_, err := tx.Session(ctx, "orders")
	require.NoError(t, err)
	participant, _ := tx.Participant("orders")
	assert.Contains(t, participant.CreationDetails(), "TestCoordinatorCreationStacks")

	plain := NewCoordinator(registry)
	_, err = plain.Session(ctx, "billing")
	require.NoError(t, err)
	participant, _ = plain.Participant("billing")
	assert.Equal(t, "Creation stacks are not stored.", participant.CreationDetails())
}
