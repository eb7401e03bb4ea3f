package main

import (
	"github.com/spf13/cobra"

	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [study-dir]",
		Short: "Start MCP server",
		Long:  "Start the Model Context Protocol server exposing classification, naming and the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				settings.StudyDir = args[0]
			}
			cfg, err := loadHeuristic(settings)
			if err != nil {
				return err
			}

			// stdout carries the protocol; zap writes to stderr and the log file.
			logger, err := newLogger(settings.Verbose, true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dbCtx, err := database.CreateDatabase(settings.DBPath)
			if err != nil {
				return err
			}

			server := mcp.NewServer(cfg, dbCtx, mcp.Options{
				StudyDir: settings.StudyDir,
				ZeroPad:  settings.ZeroPad,
				Version:  version,
				Logger:   logger,
			})
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Int("zero-pad", 2, "Width of run indices")

	return cmd
}
