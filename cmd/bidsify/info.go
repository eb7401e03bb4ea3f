package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bidsify/bidsify/internal/database"
	"github.com/bidsify/bidsify/internal/services"
)

func newInfoCmd() *cobra.Command {
	var (
		format  string
		relPath bool
	)

	cmd := &cobra.Command{
		Use:   "info <file-id>",
		Short: "Show the registry record of a source file",
		Args:  cobra.ExactArgs(1),
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

			ctx := context.Background()
			registry := services.NewRegistryService(dbCtx, nil)

			var record *database.SourceFileRecord
			if relPath {
				record, err = registry.Lookup(ctx, args[0])
				if err == nil && record == nil {
					err = fmt.Errorf("source file not registered: %s", args[0])
				}
			} else {
				record, err = registry.Get(ctx, args[0])
			}
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputInfoJSON(cmd, record)
			case "table":
				return outputInfoTable(cmd, record)
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&relPath, "path", false, "Treat the argument as a registered relative path")

	return cmd
}

type infoOutputEntry struct {
	FileID       string `json:"fileId"`
	RelPath      string `json:"relPath"`
	SubjectID    string `json:"subjectId"`
	SessionID    string `json:"sessionId,omitempty"`
	ModalityType string `json:"modalityType,omitempty"`
	BIDSName     string `json:"bidsName,omitempty"`
	FileDate     string `json:"fileDate,omitempty"`
	AcqDate      string `json:"acqDate,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func outputInfoJSON(cmd *cobra.Command, r *database.SourceFileRecord) error {
	output := infoOutputEntry{
		FileID:       r.FileID,
		RelPath:      r.RelPath,
		SubjectID:    r.SubjectID,
		SessionID:    r.SessionID,
		ModalityType: r.ModalityType,
		BIDSName:     r.BIDSName,
		FileDate:     rfc3339(r.FileDate),
		AcqDate:      rfc3339(r.AcqDate),
		CreatedAt:    rfc3339(r.CreatedAt),
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputInfoTable(cmd *cobra.Command, r *database.SourceFileRecord) error {
	// Key-value pair format for single entry
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "File ID:     %s\n", r.FileID)
	fmt.Fprintf(w, "Source:      %s\n", r.RelPath)
	fmt.Fprintf(w, "Subject:     %s\n", r.SubjectID)
	fmt.Fprintf(w, "Session:     %s\n", r.SessionID)
	fmt.Fprintf(w, "Type:        %s\n", r.ModalityType)
	fmt.Fprintf(w, "BIDS Name:   %s\n", r.BIDSName)
	fmt.Fprintf(w, "File Date:   %s\n", r.FileDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Acquired:    %s\n", r.AcqDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Created At:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))

	return nil
}
