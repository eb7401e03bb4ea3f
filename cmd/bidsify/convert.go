package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bidsify/bidsify/internal/converter"
	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/pipeline"
	"github.com/bidsify/bidsify/internal/services"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <study-dir>",
		Short: "Convert a study directory into a BIDS dataset",
		Long: `Discover every source file below the subject directories of <study-dir>,
classify it with the study heuristic, convert it with dcm2niix and write the
BIDS tree under --out-dir. Files already in the registry are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				settings.StudyDir = args[0]
			}
			if settings.StudyDir == "" {
				return fmt.Errorf("a study directory is required")
			}
			if settings.OutDir == "" {
				return fmt.Errorf("an output directory is required (--out-dir)")
			}

			cfg, err := loadHeuristic(settings)
			if err != nil {
				return err
			}

			logger, err := newLogger(settings.Verbose, !settings.DryRun)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			dbCtx, err := database.CreateDatabase(settings.DBPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = database.CloseDatabase(dbCtx)
			}()

			conv := converter.New(converter.Options{
				Executable:       settings.Converter,
				CompressionLevel: settings.CompressionLevel,
				Gzip:             settings.Gzip,
				Logger:           logger,
			})
			registry := services.NewRegistryService(dbCtx, logger)
			proc := pipeline.NewProcessor(cfg, conv, registry, pipeline.Options{
				StudyDir:         settings.StudyDir,
				OutDir:           settings.OutDir,
				ZeroPad:          settings.ZeroPad,
				Gzip:             settings.Gzip,
				CompressionLevel: settings.CompressionLevel,
				AppendDWIInfo:    settings.AppendDWIInfo,
				KeepUnknown:      settings.KeepUnknown,
				BIDSVersion:      settings.BIDSVersion,
				ToolVersion:      version,
				DryRun:           settings.DryRun,
			}, logger)

			summary, err := pipeline.NewBatch(proc, registry, logger).Run(cmd.Context())
			printSummary(cmd.OutOrStdout(), summary, settings.DryRun)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringP("out-dir", "o", "", "BIDS output directory")
	flags.Int("zero-pad", 2, "Width of run indices")
	flags.Bool("gzip", true, "Compress NIfTI outputs")
	flags.Int("compression-level", 6, "Gzip compression level (1-9)")
	flags.Bool("append-dwi-info", true, "Append b-values and echo time to DWI acq labels")
	flags.Bool("keep-unknown", true, "Convert unclassified files into the unknown directory")
	flags.String("converter", converter.DefaultExecutable, "dcm2niix executable")
	flags.String("bids-version", "", "BIDSVersion written to sidecars (default: 1.8.0)")
	flags.Bool("dry-run", false, "Classify and plan without converting or registering")

	return cmd
}

func printSummary(w io.Writer, s pipeline.Summary, dryRun bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	for _, o := range s.Outcomes {
		switch {
		case !o.Empty():
			green.Fprintf(w, "✓ %s", o.FileID)
			fmt.Fprintf(w, " %s/%s\n", o.ModalityType, filepath.Base(o.Images[0]))
		case o.Reason == "dry run":
			fmt.Fprintf(w, "  sub-%s %s %s\n", o.SubjectID, o.ModalityType, o.ModalityLabel)
		default:
			red.Fprintf(w, "✗ %s", o.FileID)
			fmt.Fprintf(w, " sub-%s: %s\n", o.SubjectID, o.Reason)
		}
	}

	if dryRun {
		bold.Fprintf(w, "Dry run: %d source files discovered\n", s.Discovered)
		return
	}
	bold.Fprintf(w, "Discovered %d, registered %d, ", s.Discovered, s.Registered)
	green.Fprintf(w, "converted %d", s.Converted)
	fmt.Fprint(w, ", ")
	yellow.Fprintf(w, "skipped %d", s.Skipped)
	fmt.Fprint(w, ", ")
	red.Fprintf(w, "failed %d\n", s.Failed)
}
