package database

import "time"

// SourceFileRecord represents a row in the source_files table. One record
// exists per registered source file or DICOM series directory; BIDSName is
// empty until naming completes.
type SourceFileRecord struct {
	FileID       string
	RelPath      string
	FileDate     time.Time
	AcqDate      time.Time
	SubjectID    string
	SessionID    string
	ModalityType string
	BIDSName     string
	CreatedAt    time.Time
}

// SourceFileFilter narrows List results. Empty fields match everything.
type SourceFileFilter struct {
	SubjectID string
	SessionID string
}
