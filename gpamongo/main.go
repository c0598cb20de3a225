// Package gpamongo provides MongoDB-backed id sequences for gpatx
package gpamongo

import (
	"context"
	"fmt"
	"time"

	"github.com/lemmego/gpatx"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultCountersCollection holds one document per sequence
const DefaultCountersCollection = "gpatx_counters"

// =====================================
// Client Construction
// =====================================

// Connect opens a client from a datasource configuration, checks that the
// primary is reachable and returns the configured database. Disconnect the
// client through Database.Client() when done.
func Connect(ctx context.Context, config gpatx.Config) (*mongo.Database, error) {
	if config.Database == "" {
		return nil, gpatx.NewError(gpatx.ErrorTypeConfiguration, "MongoDB database name is required")
	}

	clientOpts := options.Client().ApplyURI(buildConnectionURI(config))
	if err := applyClientOptions(clientOpts, config); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to connect to MongoDB",
			Cause:   err,
		}
	}

	// Test the connection
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "failed to ping MongoDB",
			Cause:   err,
		}
	}

	return client.Database(config.Database), nil
}

// buildConnectionURI builds MongoDB connection URI
func buildConnectionURI(config gpatx.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	uri := "mongodb://"

	// Add credentials if provided
	if config.Username != "" {
		uri += config.Username
		if config.Password != "" {
			uri += ":" + config.Password
		}
		uri += "@"
	}

	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 27017
	}
	uri += fmt.Sprintf("%s:%d", host, port)

	if config.Database != "" {
		uri += "/" + config.Database
	}

	if config.SSL.Enabled {
		uri += "?tls=true"
		if config.SSL.CAFile != "" {
			uri += "&tlsCAFile=" + config.SSL.CAFile
		}
		if config.SSL.CertFile != "" {
			uri += "&tlsCertificateKeyFile=" + config.SSL.CertFile
		}
	}

	return uri
}

// applyClientOptions applies pool settings from config and the "mongo" options
func applyClientOptions(clientOpts *options.ClientOptions, config gpatx.Config) error {
	if config.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(config.MaxOpenConns))
	}
	if config.MaxIdleConns > 0 {
		clientOpts.SetMinPoolSize(uint64(config.MaxIdleConns))
	}
	if config.ConnMaxIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(config.ConnMaxIdleTime)
	}

	mongoOpts := config.ProviderOptions("mongo")
	if maxPoolSize, ok := mongoOpts["max_pool_size"].(int); ok {
		clientOpts.SetMaxPoolSize(uint64(maxPoolSize))
	}
	if minPoolSize, ok := mongoOpts["min_pool_size"].(int); ok {
		clientOpts.SetMinPoolSize(uint64(minPoolSize))
	}
	switch maxIdleTime := mongoOpts["max_idle_time"].(type) {
	case time.Duration:
		clientOpts.SetMaxConnIdleTime(maxIdleTime)
	case string:
		d, err := time.ParseDuration(maxIdleTime)
		if err != nil {
			return gpatx.NewErrorWithCause(gpatx.ErrorTypeConfiguration, "invalid MongoDB option max_idle_time", err)
		}
		clientOpts.SetMaxConnIdleTime(d)
	}
	return nil
}

// =====================================
// Sequence
// =====================================

// counter is the document stored per sequence
type counter struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Sequence is a gpatx.SequenceSource backed by a counter document that is
// incremented atomically with findOneAndUpdate.
type Sequence struct {
	collection *mongo.Collection
	name       string
}

// NewSequence creates the sequence name stored in the counters collection of
// db. An empty name selects gpatx.DefaultSequenceName.
func NewSequence(db *mongo.Database, name string) *Sequence {
	return NewSequenceInCollection(db.Collection(DefaultCountersCollection), name)
}

// NewSequenceInCollection creates a sequence stored in collection
func NewSequenceInCollection(collection *mongo.Collection, name string) *Sequence {
	if name == "" {
		name = gpatx.DefaultSequenceName
	}
	return &Sequence{collection: collection, name: name}
}

// Name returns the sequence name, which is the _id of its counter document
func (s *Sequence) Name() string {
	return s.name
}

// NextValue implements gpatx.SequenceSource
func (s *Sequence) NextValue(ctx context.Context) (int64, error) {
	value, err := s.increment(ctx)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Two upserts raced to create the counter; the document exists now.
		value, err = s.increment(ctx)
	}
	if err != nil {
		return 0, convertMongoError(err)
	}
	return value, nil
}

func (s *Sequence) increment(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc counter
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": s.name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&doc)
	return doc.Value, err
}

// Current returns the last value handed out, or 0 for an unused sequence
func (s *Sequence) Current(ctx context.Context) (int64, error) {
	var doc counter
	err := s.collection.FindOne(ctx, bson.M{"_id": s.name}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, convertMongoError(err)
	}
	return doc.Value, nil
}

// Restart makes the next call to NextValue return value+1
func (s *Sequence) Restart(ctx context.Context, value int64) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": s.name},
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	return convertMongoError(err)
}
