package cmd

import (
	"fmt"

	"github.com/lemmego/gpatx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open every datasource in one transaction and roll it back",
		Long: `Open every configured datasource as a participant of a single
composite transaction, report the connection settings each one got,
then roll everything back. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	names := registry.Names()
	if len(names) == 0 {
		return gpatx.NewError(gpatx.ErrorTypeConfiguration, "no datasources configured")
	}

	ctx := cmd.Context()
	tx := gpatx.NewCoordinator(registry, opts...)
	out := cmd.OutOrStdout()

	var failed int
	for _, name := range names {
		conn, err := tx.Conn(ctx, name)
		if err != nil {
			failed++
			env.logger.Error("datasource check failed", zap.String("datasource", name), zap.Error(err))
			fmt.Fprintf(out, "%-20s FAIL  %v\n", name, err)
			continue
		}

		level, err := conn.IsolationLevel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-20s FAIL  %v\n", name, err)
			continue
		}

		info, err := providerLabel(registry, name)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-20s FAIL  %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%-20s OK    %-16s isolation=%s autocommit=%t\n", name, info, level, conn.AutoCommit())
	}

	if err := tx.Rollback(); err != nil {
		failed++
		fmt.Fprintf(out, "rollback failed: %v\n", err)
	}
	if err := tx.Close(); err != nil {
		failed++
		fmt.Fprintf(out, "close failed: %v\n", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(names))
	}
	return nil
}

// providerLabel describes the provider behind a datasource as "Name/dialect",
// or "-" for registrations without one
func providerLabel(registry *gpatx.Registry, name string) (string, error) {
	ds, err := registry.Lookup(name)
	if err != nil {
		return "", err
	}
	if ds.Provider == nil {
		return "-", nil
	}
	info := ds.Provider.ProviderInfo()
	return info.Name + "/" + info.Dialect, nil
}
