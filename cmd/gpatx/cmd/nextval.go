package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/lemmego/gpatx"
	"github.com/lemmego/gpatx/gpamongo"
	"github.com/lemmego/gpatx/gparedis"
	"github.com/spf13/cobra"
)

var (
	sequenceBackend    string
	sequenceDatasource string
	sequenceURL        string
	sequenceDatabase   string
	sequenceCount      int
)

func newNextvalCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "nextval [sequence]",
		Short: "Draw the next values of an id sequence",
		Long: `Draw one or more values from an id sequence. The sequence name
defaults to "id_sequence".

Backends:
  sql    - a database sequence of a configured datasource (postgres, mssql, oracle)
  redis  - an INCR counter in Redis
  mongo  - a counter document in MongoDB

Examples:
  gpatx nextval --config gpatx.yaml --datasource orders
  gpatx nextval --backend redis --url redis://localhost:6379/0 -n 5 invoices
  gpatx nextval --backend mongo --url mongodb://localhost:27017 --database app`,
		Args: cobra.MaximumNArgs(1),
		RunE: runNextval,
	}

	c.Flags().StringVar(&sequenceBackend, "backend", "sql", "Sequence backend: sql, redis or mongo")
	c.Flags().StringVar(&sequenceDatasource, "datasource", "", "Datasource holding the sequence (sql backend)")
	c.Flags().StringVar(&sequenceURL, "url", "", "Connection URL (redis and mongo backends)")
	c.Flags().StringVar(&sequenceDatabase, "database", "", "Database name (mongo backend)")
	c.Flags().IntVarP(&sequenceCount, "count", "n", 1, "Number of values to draw")
	return c
}

func runNextval(cmd *cobra.Command, args []string) error {
	name := gpatx.DefaultSequenceName
	if len(args) == 1 {
		name = args[0]
	}
	if sequenceCount < 1 {
		return gpatx.NewError(gpatx.ErrorTypeConfiguration, "--count must be at least 1")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch sequenceBackend {
	case "sql":
		return nextvalSQL(ctx, out, name)
	case "redis":
		client, err := gparedis.NewClient(ctx, gpatx.Config{Driver: "redis", ConnectionURL: sequenceURL})
		if err != nil {
			return err
		}
		defer client.Close()
		return drawValues(ctx, out, gparedis.NewSequence(client, name))
	case "mongo":
		db, err := gpamongo.Connect(ctx, gpatx.Config{Driver: "mongodb", ConnectionURL: sequenceURL, Database: sequenceDatabase})
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(context.Background())
		return drawValues(ctx, out, gpamongo.NewSequence(db, name))
	}
	return gpatx.NewError(gpatx.ErrorTypeConfiguration, fmt.Sprintf("unknown sequence backend %q", sequenceBackend))
}

// nextvalSQL draws values inside one composite transaction so they are
// committed together
func nextvalSQL(ctx context.Context, out io.Writer, name string) error {
	if sequenceDatasource == "" {
		return gpatx.NewError(gpatx.ErrorTypeConfiguration, "--datasource is required for the sql backend")
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.logger.Sync()

	opts, err := env.coordinatorOptions()
	if err != nil {
		return err
	}
	registry, err := gpatx.OpenRegistry(env.settings)
	if err != nil {
		return err
	}
	defer registry.Close()

	ds, err := registry.Lookup(sequenceDatasource)
	if err != nil {
		return err
	}
	if ds.Provider == nil {
		return gpatx.NewError(gpatx.ErrorTypeConfiguration, "datasource "+sequenceDatasource+" has no provider")
	}
	dialect := ds.Provider.ProviderInfo().Dialect

	return gpatx.RunInTransaction(ctx, registry, func(ctx context.Context, tx *gpatx.Coordinator) error {
		session, err := tx.Session(ctx, sequenceDatasource)
		if err != nil {
			return err
		}
		return drawValues(ctx, out, gpatx.SessionSequence{Session: session, Name: name, Dialect: dialect})
	}, opts...)
}

func drawValues(ctx context.Context, out io.Writer, source gpatx.SequenceSource) error {
	for i := 0; i < sequenceCount; i++ {
		value, err := source.NextValue(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value)
	}
	return nil
}
