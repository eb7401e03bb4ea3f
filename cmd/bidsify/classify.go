package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/bidsify/bidsify/internal/discovery"
	"github.com/bidsify/bidsify/internal/pipeline"
)

func newClassifyCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "classify <study-dir>",
		Short: "Show how each source file of a study would be classified",
		Args:  cobra.MaximumNArgs(1),
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
			cfg, err := loadHeuristic(settings)
			if err != nil {
				return err
			}
			logger, err := newLogger(settings.Verbose, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			records, err := discovery.Discover(settings.StudyDir, discovery.Options{Exclude: cfg.Exclude, Logger: logger})
			if err != nil {
				return err
			}
			proc := pipeline.NewProcessor(cfg, nil, nil, pipeline.Options{StudyDir: settings.StudyDir}, logger)

			rows := make([]classifyRow, 0, len(records))
			for _, rec := range records {
				plan := proc.Plan(rec)
				rows = append(rows, classifyRow{
					RelPath:       rec.RelPath,
					Subject:       rec.SubjectID,
					Session:       rec.SessionID,
					Format:        plan.Format.String(),
					ModalityType:  plan.Result.ModalityType,
					ModalityLabel: plan.Result.ModalityLabel,
					Task:          plan.Result.Task,
					Components:    plan.Components,
				})
			}

			switch format {
			case "json":
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(rows)
			case "table":
				outputClassifyTable(cmd, rows)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type classifyRow struct {
	RelPath       string            `json:"relPath"`
	Subject       string            `json:"subject"`
	Session       string            `json:"session,omitempty"`
	Format        string            `json:"format"`
	ModalityType  string            `json:"modalityType,omitempty"`
	ModalityLabel string            `json:"modalityLabel,omitempty"`
	Task          string            `json:"task,omitempty"`
	Components    map[string]string `json:"components,omitempty"`
}

func formatComponents(c map[string]string) string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"-"+c[k])
	}
	return strings.Join(parts, " ")
}

func outputClassifyTable(cmd *cobra.Command, rows []classifyRow) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	pathWidth := getTerminalWidth() - 60
	if pathWidth < 20 {
		pathWidth = 20
	}

	t.AppendHeader(table.Row{"Source", "Sub", "Ses", "Format", "Type", "Label", "Task", "Components"})
	for _, r := range rows {
		modalityType := r.ModalityType
		if modalityType == "" {
			modalityType = "-"
		}
		t.AppendRow(table.Row{
			runewidth.Truncate(r.RelPath, pathWidth, "..."),
			r.Subject,
			r.Session,
			r.Format,
			modalityType,
			r.ModalityLabel,
			r.Task,
			formatComponents(r.Components),
		})
	}
	t.Render()
}
