// Package gparedis provides Redis-backed id sequences for gpatx
package gparedis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lemmego/gpatx"
)

// DefaultKeyPrefix is prepended to sequence names to build the counter key
const DefaultKeyPrefix = "gpatx:sequence:"

// =====================================
// Client Construction
// =====================================

// NewClient creates a Redis client from a datasource configuration and
// checks that the server is reachable.
func NewClient(ctx context.Context, config gpatx.Config) (*redis.Client, error) {
	opts, err := clientOptions(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to connect to Redis",
			Cause:   err,
		}
	}

	return client, nil
}

// clientOptions builds go-redis options from config
func clientOptions(config gpatx.Config) (*redis.Options, error) {
	if config.ConnectionURL != "" {
		opts, err := redis.ParseURL(config.ConnectionURL)
		if err != nil {
			return nil, gpatx.NewErrorWithCause(gpatx.ErrorTypeConfiguration, "invalid Redis URL", err)
		}
		return opts, nil
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Username: config.Username,
		Password: config.Password,
		DB:       0, // Default database
	}

	// Parse database number if provided
	if config.Database != "" {
		db, err := strconv.Atoi(config.Database)
		if err != nil {
			return nil, gpatx.NewErrorWithCause(gpatx.ErrorTypeConfiguration, fmt.Sprintf("Redis database %q is not a number", config.Database), err)
		}
		opts.DB = db
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		opts.PoolSize = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		opts.MinIdleConns = config.MaxIdleConns
	}
	if config.ConnMaxLifetime > 0 {
		opts.MaxConnAge = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		opts.IdleTimeout = config.ConnMaxIdleTime
	}

	// Apply Redis-specific options
	redisOpts := config.ProviderOptions("redis")
	for key, target := range map[string]*time.Duration{
		"dial_timeout":  &opts.DialTimeout,
		"read_timeout":  &opts.ReadTimeout,
		"write_timeout": &opts.WriteTimeout,
	} {
		d, err := durationOption(redisOpts[key])
		if err != nil {
			return nil, gpatx.NewErrorWithCause(gpatx.ErrorTypeConfiguration, "invalid Redis option "+key, err)
		}
		if d > 0 {
			*target = d
		}
	}

	return opts, nil
}

// durationOption accepts durations given either as time.Duration or as a
// string such as "3s"
func durationOption(v interface{}) (time.Duration, error) {
	switch d := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return d, nil
	case string:
		return time.ParseDuration(d)
	default:
		return 0, fmt.Errorf("unsupported duration value of type %T", v)
	}
}

// =====================================
// Sequence
// =====================================

// Sequence is a gpatx.SequenceSource backed by a Redis counter. INCR is
// atomic, so concurrent callers never receive the same value.
type Sequence struct {
	client redis.Cmdable
	prefix string
	name   string
}

// SequenceOption configures a Sequence
type SequenceOption func(*Sequence)

// WithKeyPrefix replaces DefaultKeyPrefix
func WithKeyPrefix(prefix string) SequenceOption {
	return func(s *Sequence) {
		s.prefix = prefix
	}
}

// NewSequence creates the sequence name stored in client. An empty name
// selects gpatx.DefaultSequenceName.
func NewSequence(client redis.Cmdable, name string, opts ...SequenceOption) *Sequence {
	if name == "" {
		name = gpatx.DefaultSequenceName
	}
	s := &Sequence{
		client: client,
		prefix: DefaultKeyPrefix,
		name:   name,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key holding the counter
func (s *Sequence) Key() string {
	return s.prefix + s.name
}

// NextValue implements gpatx.SequenceSource
func (s *Sequence) NextValue(ctx context.Context) (int64, error) {
	value, err := s.client.Incr(ctx, s.Key()).Result()
	if err != nil {
		return 0, convertRedisError(err)
	}
	return value, nil
}

// Current returns the last value handed out, or 0 for an unused sequence
func (s *Sequence) Current(ctx context.Context) (int64, error) {
	value, err := s.client.Get(ctx, s.Key()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, convertRedisError(err)
	}
	return value, nil
}

// Restart makes the next call to NextValue return value+1
func (s *Sequence) Restart(ctx context.Context, value int64) error {
	return convertRedisError(s.client.Set(ctx, s.Key(), value, 0).Err())
}

// =====================================
// Error Conversion
// =====================================

// convertRedisError converts Redis errors to gpatx errors
func convertRedisError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeNotFound,
			Message: "key not found",
		}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTimeout,
			Message: "Redis operation timed out",
			Cause:   err,
		}
	}

	return gpatx.Error{
		Type:    gpatx.ErrorTypeDatabase,
		Message: "Redis operation failed",
		Cause:   err,
	}
}
