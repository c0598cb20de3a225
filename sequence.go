package gpatx

import (
	"context"
	"fmt"
	"strconv"
)

// DefaultSequenceName is the sequence used when none is configured
const DefaultSequenceName = "id_sequence"

// SequenceSource yields the next value of a monotonically increasing sequence
type SequenceSource interface {
	NextValue(ctx context.Context) (int64, error)
}

// StringSequenceIdentifier generates string identifiers from a sequence
type StringSequenceIdentifier struct {
	Source SequenceSource
}

// Generate returns the next identifier for entity
func (g StringSequenceIdentifier) Generate(ctx context.Context, entity interface{}) (string, error) {
	value, err := g.Source.NextValue(ctx)
	if err != nil {
		return "", NewErrorWithCause(ErrorTypeDatabase, fmt.Sprintf("failed to generate sequence for instance of %T", entity), err)
	}
	return strconv.FormatInt(value, 10), nil
}

// SessionSequence reads a database sequence through a session
type SessionSequence struct {
	Session Session
	Name    string
	Dialect string
}

// NextValue implements SequenceSource
func (s SessionSequence) NextValue(ctx context.Context) (int64, error) {
	query, err := NextValueQuery(s.Dialect, s.Name)
	if err != nil {
		return 0, err
	}

	var value int64
	if err := s.Session.Query(ctx, &value, query); err != nil {
		return 0, err
	}
	return value, nil
}

// NextValueQuery returns the statement that advances sequence name in dialect
func NextValueQuery(dialect, name string) (string, error) {
	if name == "" {
		name = DefaultSequenceName
	}
	switch dialect {
	case DialectPgSQL:
		return fmt.Sprintf("SELECT nextval('%s')", name), nil
	case DialectMsSQL:
		return "SELECT NEXT VALUE FOR " + name, nil
	case DialectOracle:
		return "SELECT " + name + ".NEXTVAL FROM DUAL", nil
	}
	return "", NewError(ErrorTypeUnsupported, fmt.Sprintf("sequences are not supported by dialect %q", dialect))
}
