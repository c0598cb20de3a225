package gpatx

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

type coordinatorKey struct{}

// ContextWithCoordinator returns a copy of ctx carrying c
func ContextWithCoordinator(ctx context.Context, c *Coordinator) context.Context {
	return context.WithValue(ctx, coordinatorKey{}, c)
}

// CoordinatorFromContext returns the coordinator stored in ctx, if any
func CoordinatorFromContext(ctx context.Context) (*Coordinator, bool) {
	c, ok := ctx.Value(coordinatorKey{}).(*Coordinator)
	return c, ok
}

// TransactionFunc is the body of a unit of work
type TransactionFunc func(ctx context.Context, tx *Coordinator) error

// RunInTransaction executes fn inside a new composite transaction.
// If fn returns nil every opened datasource is committed, otherwise every
// opened datasource is rolled back. A panic in fn rolls back and is
// re-raised. The coordinator is always closed.
//
// Example:
//
//	err := gpatx.RunInTransaction(ctx, registry, func(ctx context.Context, tx *gpatx.Coordinator) error {
//	    orders, err := tx.Session(ctx, "orders")
//	    if err != nil {
//	        return err
//	    }
//	    return orders.Save(ctx, &order)
//	})
func RunInTransaction(ctx context.Context, registry *Registry, fn TransactionFunc, opts ...Option) (err error) {
	tx := NewCoordinator(registry, opts...)
	panicked := true

	defer func() {
		if panicked {
			if rbErr := tx.Rollback(); rbErr != nil {
				tx.logger.Warn("rollback after panic failed", zap.Error(rbErr))
			}
			if closeErr := tx.Close(); closeErr != nil {
				tx.logger.Warn("close after panic failed", zap.Error(closeErr))
			}
			return
		}
		if closeErr := tx.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	fnErr := fn(ContextWithCoordinator(ctx, tx), tx)
	panicked = false

	if fnErr != nil {
		return errors.Join(fnErr, tx.Rollback())
	}
	return tx.Commit()
}
