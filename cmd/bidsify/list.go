package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/services"
)

func newListCmd() *cobra.Command {
	var (
		format  string
		subject string
		session string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			ctx := context.Background()
			records, err := services.NewRegistryService(dbCtx, nil).List(ctx, database.SourceFileFilter{
				SubjectID: subject,
				SessionID: session,
			})
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputJSON(cmd, records)
			case "table":
				outputTable(cmd, records)
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().StringVar(&subject, "sub", "", "Only list files of this subject")
	cmd.Flags().StringVar(&session, "ses", "", "Only list files of this session")

	return cmd
}

type listOutputEntry struct {
	FileID       string `json:"file_id"`
	RelPath      string `json:"rel_path"`
	Subject      string `json:"sub_id"`
	Session      string `json:"ses_id,omitempty"`
	ModalityType string `json:"modality_type,omitempty"`
	BIDSName     string `json:"bids_name,omitempty"`
	AcqDate      string `json:"acq_date,omitempty"`
	Created      string `json:"created"`
}

func outputJSON(cmd *cobra.Command, records []database.SourceFileRecord) error {
	output := make([]listOutputEntry, 0, len(records))
	for _, r := range records {
		item := listOutputEntry{
			FileID:       r.FileID,
			RelPath:      r.RelPath,
			Subject:      r.SubjectID,
			Session:      r.SessionID,
			ModalityType: r.ModalityType,
			BIDSName:     r.BIDSName,
			Created:      r.CreatedAt.Format(time.RFC3339),
		}
		if !r.AcqDate.IsZero() {
			item.AcqDate = r.AcqDate.Format(time.RFC3339)
		}
		output = append(output, item)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func getTerminalWidth() int {
	// Try to get terminal width from stdout
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	// Default width if terminal size cannot be determined
	return 80
}

// columnWidths holds the widths of the two free-text columns
type columnWidths struct {
	path int
	name int
}

// calculateColumnWidths splits the space left by the fixed columns between
// the source path and the BIDS name, giving the name priority.
func calculateColumnWidths(termWidth int, records []database.SourceFileRecord) columnWidths {
	// ID, Sub, Ses, Type, Acquired plus borders
	fixed := 7 + 6 + 5 + 7 + 16 + 7*3
	available := termWidth - fixed

	maxName := 10
	for _, r := range records {
		if w := runewidth.StringWidth(r.BIDSName); w > maxName {
			maxName = w
		}
	}
	nameWidth := maxName
	if nameWidth > available*2/3 {
		nameWidth = available * 2 / 3
	}
	pathWidth := available - nameWidth
	if pathWidth < 15 {
		pathWidth = 15
	}
	if nameWidth < 15 {
		nameWidth = 15
	}
	return columnWidths{path: pathWidth, name: nameWidth}
}

func outputTable(cmd *cobra.Command, records []database.SourceFileRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	widths := calculateColumnWidths(getTerminalWidth(), records)

	t.AppendHeader(table.Row{"ID", "Sub", "Ses", "Type", "Acquired", "Source", "BIDS Name"})
	for _, r := range records {
		acquired := ""
		if !r.AcqDate.IsZero() {
			acquired = r.AcqDate.Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{
			r.FileID,
			r.SubjectID,
			r.SessionID,
			r.ModalityType,
			acquired,
			runewidth.Truncate(r.RelPath, widths.path, "..."),
			runewidth.Truncate(r.BIDSName, widths.name, "..."),
		})
	}

	t.Render()
}
