package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/services"
)

func newScansCmd() *cobra.Command {
	var (
		session string
		write   bool
	)

	cmd := &cobra.Command{
		Use:   "scans <subject>",
		Short: "Print or rewrite the scans.tsv of a subject session",
		Long: `Build the scans table of a subject session from the registry. With --write
the table is stored as sub-<id>[_ses-<id>]_scans.tsv in the session
directory under --out-dir; otherwise it is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			dbCtx, err := database.CreateDatabase(settings.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = database.CloseDatabase(dbCtx)
			}()

			sub := args[0]
			rows, err := services.NewRegistryService(dbCtx, nil).ScansRows(context.Background(), sub, session, settings.Gzip)
			if err != nil {
				return err
			}

			if !write {
				return services.WriteScans(cmd.OutOrStdout(), rows)
			}

			dir := filepath.Join(settings.OutDir, "sub-"+sub)
			if session != "" {
				dir = filepath.Join(dir, "ses-"+session)
			}
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return err
			}
			path := filepath.Join(dir, services.ScansFileName(sub, session))
			//nolint:gosec // G304: path is inside the output tree
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := services.WriteScans(f, rows); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "ses", "", "Session ID")
	cmd.Flags().BoolVar(&write, "write", false, "Write the file into the output tree")
	cmd.Flags().StringP("out-dir", "o", ".", "BIDS output directory")
	cmd.Flags().Bool("gzip", true, "Outputs are compressed NIfTI")

	return cmd
}
