// Package commands holds the requisition server's command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/config"
	"github.com/garyjia/office-requisition/pkg/utils"
)

const serviceName = "office-requisition"

var (
	configPath       string
	logLevelOverride string
)

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "requisition-server",
		Short:        "Office requisition workflow service",
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		NewServeCmd(),
		NewMigrateCmd(),
	)

	return cmd
}

// bootstrap loads configuration and builds the process logger
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logger.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    serviceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}
