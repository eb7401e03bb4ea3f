package sqldb

import "database/sql"

// SourceFile is a row of the source_files table.
type SourceFile struct {
	FileID       string
	RelPath      string
	FileDate     string
	AcqDate      string
	SubID        string
	SesID        string
	ModalityType string
	BidsName     sql.NullString
	CreatedAt    sql.NullTime
}
