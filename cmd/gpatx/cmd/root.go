package cmd

import (
	"github.com/lemmego/gpatx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Register the ORM providers
	_ "github.com/lemmego/gpatx/gpabun"
	_ "github.com/lemmego/gpatx/gpagorm"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	configPath string
	logLevel   string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpatx",
		Short: "gpatx CLI - multi-datasource transactions",
		Long: `gpatx CLI works with the datasources declared in a gpatx settings file.

Commands:
  check    - Open every datasource in one transaction and roll it back
  nextval  - Draw the next values of an id sequence

Example:
  gpatx check --config gpatx.yaml
  gpatx nextval --config gpatx.yaml --datasource orders
  gpatx nextval --backend redis --url redis://localhost:6379/0 invoices`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (YAML); GPATX_* environment variables override it")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newCheckCmd())
	root.AddCommand(newNextvalCmd())
	return root
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// environment is what every command needs from the settings file
type environment struct {
	settings *gpatx.Settings
	logger   *zap.Logger
}

// loadEnvironment reads the settings and builds the logger
func loadEnvironment() (*environment, error) {
	settings, err := gpatx.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}

	logger, err := settings.NewLogger()
	if err != nil {
		return nil, err
	}
	return &environment{settings: settings, logger: logger}, nil
}

// coordinatorOptions returns the options for coordinators opened by commands
func (e *environment) coordinatorOptions() ([]gpatx.Option, error) {
	return e.settings.CoordinatorOptions(e.logger)
}
