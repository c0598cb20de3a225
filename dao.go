package gpatx

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Identifiable is implemented by every persisted entity. Identifier returns
// the value of the primary key, or nil for an entity that has none yet.
type Identifiable interface {
	Identifier() interface{}
}

// IDKind selects how id values are bound to query parameters
type IDKind int

const (
	// IDKindInt binds ids as 64-bit integers; string ids are parsed.
	IDKindInt IDKind = iota
	// IDKindString binds ids as strings; integer ids are formatted.
	IDKindString
)

// DAOOption configures a DAO
type DAOOption func(*daoConfig)

type daoConfig struct {
	idColumn string
	idKind   IDKind
}

// WithIDColumn sets the column holding the primary key. Defaults to "id".
func WithIDColumn(column string) DAOOption {
	return func(c *daoConfig) {
		c.idColumn = column
	}
}

// WithIDKind sets how ids are bound. Defaults to IDKindInt.
func WithIDKind(kind IDKind) DAOOption {
	return func(c *daoConfig) {
		c.idKind = kind
	}
}

// DAO provides the basic data access operations for entity type T on top of
// a Session. P is the pointer type *T, which must implement Identifiable.
//
// Example:
//
//	type Customer struct {
//	    ID   int64
//	    Name string
//	}
//
//	func (c *Customer) Identifier() interface{} { return c.ID }
//
//	customers := gpatx.NewDAO[Customer](session)
//	exists, err := customers.Exists(ctx, "42")
type DAO[T any, P interface {
	*T
	Identifiable
}] struct {
	session  Session
	idColumn string
	idKind   IDKind
	name     string
}

// NewDAO creates a DAO operating through session
func NewDAO[T any, P interface {
	*T
	Identifiable
}](session Session, opts ...DAOOption) *DAO[T, P] {
	cfg := daoConfig{idColumn: "id", idKind: IDKindInt}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DAO[T, P]{
		session:  session,
		idColumn: cfg.idColumn,
		idKind:   cfg.idKind,
		name:     reflect.TypeOf((*T)(nil)).Elem().String(),
	}
}

// Session returns the session the DAO operates on
func (d *DAO[T, P]) Session() Session {
	return d.session
}

// Get loads the entity with the given id
func (d *DAO[T, P]) Get(ctx context.Context, id interface{}) (P, error) {
	bound, err := d.bindID(id)
	if err != nil {
		return nil, err
	}

	entity := P(new(T))
	if err := d.session.Get(ctx, entity, bound); err != nil {
		return nil, d.wrap(err, ErrorTypeDatabase, fmt.Sprintf("could not get instance of %s with id %v", d.name, id))
	}
	return entity, nil
}

// Exists reports whether an entity with the given id is stored. A nil id
// never exists.
func (d *DAO[T, P]) Exists(ctx context.Context, id interface{}) (bool, error) {
	if id == nil {
		return false, nil
	}
	bound, err := d.bindID(id)
	if err != nil {
		return false, err
	}

	count, err := d.session.Count(ctx, P(new(T)), d.idColumn, bound)
	if err != nil {
		return false, d.wrap(err, ErrorTypeDatabase, fmt.Sprintf("could not check existence of %s with id %v", d.name, id))
	}
	return count > 0, nil
}

// Create inserts an entity that must not have been stored before and returns
// its identifier.
func (d *DAO[T, P]) Create(ctx context.Context, entity P) (interface{}, error) {
	id := entity.Identifier()
	exists, err := d.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, NewError(ErrorTypeDuplicate, fmt.Sprintf("cannot create %s with id %v because it has already been persisted in the database before", d.name, id))
	}
	return d.Save(ctx, entity)
}

// Save inserts an entity and returns its identifier, which the database may
// have generated during the insert.
func (d *DAO[T, P]) Save(ctx context.Context, entity P) (interface{}, error) {
	if err := d.session.Save(ctx, entity); err != nil {
		return nil, d.wrap(err, ErrorTypeDatabase, "could not save entity "+d.name)
	}
	return entity.Identifier(), nil
}

// Update stores the changes of an entity that must have been stored before
func (d *DAO[T, P]) Update(ctx context.Context, entity P) error {
	id := entity.Identifier()
	exists, err := d.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return NewError(ErrorTypeNotFound, fmt.Sprintf("cannot update %s with id %v because it has not been persisted in the database before", d.name, id))
	}
	if err := d.session.SaveOrUpdate(ctx, entity); err != nil {
		return d.wrap(err, ErrorTypeDatabase, "could not update "+d.name)
	}
	return nil
}

// Delete removes an entity. Entities not tracked by the session are attached first.
func (d *DAO[T, P]) Delete(ctx context.Context, entity P) error {
	if !d.session.Contains(entity) {
		d.session.Attach(entity)
	}
	if err := d.session.Delete(ctx, entity); err != nil {
		return d.wrap(err, ErrorTypeDatabase, "could not delete "+d.name)
	}
	return nil
}

// DeleteByID removes the entity with the given id and returns the number of
// deleted rows.
func (d *DAO[T, P]) DeleteByID(ctx context.Context, id interface{}) (int64, error) {
	bound, err := d.bindID(id)
	if err != nil {
		return 0, err
	}
	n, err := d.session.DeleteWhere(ctx, P(new(T)), d.idColumn, bound)
	if err != nil {
		return 0, d.wrap(err, ErrorTypeDatabase, fmt.Sprintf("could not delete %s with id %v", d.name, id))
	}
	return n, nil
}

// FindAll returns every stored entity ordered by id
func (d *DAO[T, P]) FindAll(ctx context.Context) ([]P, error) {
	var entities []P
	if err := d.session.FindAll(ctx, &entities, d.idColumn); err != nil {
		return nil, d.wrap(err, ErrorTypeDatabase, "could not find all instances of "+d.name)
	}
	return entities, nil
}

// Flush pushes pending changes of the session to the database
func (d *DAO[T, P]) Flush(ctx context.Context) error {
	if err := d.session.Flush(ctx); err != nil {
		return d.wrap(err, ErrorTypeDatabase, "could not flush "+d.name)
	}
	return nil
}

// bindID converts id into the value bound to the id column
func (d *DAO[T, P]) bindID(id interface{}) (interface{}, error) {
	var n int64
	switch v := id.(type) {
	case string:
		if d.idKind == IDKindString {
			return v, nil
		}
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, NewErrorWithCause(ErrorTypeConfiguration, fmt.Sprintf("id %q of %s is not an integer", v, d.name), err)
		}
		return parsed, nil
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	default:
		return nil, NewError(ErrorTypeConfiguration, fmt.Sprintf("id of type %T is not supported", id))
	}

	if d.idKind == IDKindString {
		return strconv.FormatInt(n, 10), nil
	}
	return n, nil
}

// wrap keeps the classification of typed errors and attaches the DAO message
func (d *DAO[T, P]) wrap(err error, fallback ErrorType, message string) error {
	errorType := fallback
	var e Error
	if errors.As(err, &e) {
		errorType = e.Type
	}
	return NewErrorWithCause(errorType, message, err)
}
