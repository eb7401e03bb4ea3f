package sqldb

import (
	"context"
	"database/sql"
)

const sourceFileColumns = `file_id, rel_path, file_date, acq_date, sub_id, ses_id, modality_type, bids_name, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSourceFile(row rowScanner) (SourceFile, error) {
	var i SourceFile
	err := row.Scan(
		&i.FileID,
		&i.RelPath,
		&i.FileDate,
		&i.AcqDate,
		&i.SubID,
		&i.SesID,
		&i.ModalityType,
		&i.BidsName,
		&i.CreatedAt,
	)
	return i, err
}

const insertSourceFile = `INSERT INTO source_files (file_id, rel_path, file_date, acq_date, sub_id, ses_id)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertSourceFileParams struct {
	FileID   string
	RelPath  string
	FileDate string
	AcqDate  string
	SubID    string
	SesID    string
}

func (q *Queries) InsertSourceFile(ctx context.Context, arg InsertSourceFileParams) error {
	_, err := q.db.ExecContext(ctx, insertSourceFile,
		arg.FileID,
		arg.RelPath,
		arg.FileDate,
		arg.AcqDate,
		arg.SubID,
		arg.SesID,
	)
	return err
}

const findSourceFileByID = `SELECT ` + sourceFileColumns + ` FROM source_files WHERE file_id = ?`

func (q *Queries) FindSourceFileByID(ctx context.Context, fileID string) (SourceFile, error) {
	return scanSourceFile(q.db.QueryRowContext(ctx, findSourceFileByID, fileID))
}

const findSourceFileByRelPath = `SELECT ` + sourceFileColumns + ` FROM source_files WHERE rel_path = ?`

func (q *Queries) FindSourceFileByRelPath(ctx context.Context, relPath string) (SourceFile, error) {
	return scanSourceFile(q.db.QueryRowContext(ctx, findSourceFileByRelPath, relPath))
}

const countSourceFiles = `SELECT COUNT(*) FROM source_files`

func (q *Queries) CountSourceFiles(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countSourceFiles).Scan(&count)
	return count, err
}

const listSourceFiles = `SELECT ` + sourceFileColumns + ` FROM source_files
WHERE (? = '' OR sub_id = ?)
  AND (? = '' OR ses_id = ?)
ORDER BY file_id`

type ListSourceFilesParams struct {
	SubID string
	SesID string
}

func (q *Queries) ListSourceFiles(ctx context.Context, arg ListSourceFilesParams) ([]SourceFile, error) {
	rows, err := q.db.QueryContext(ctx, listSourceFiles,
		arg.SubID, arg.SubID,
		arg.SesID, arg.SesID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SourceFile
	for rows.Next() {
		i, err := scanSourceFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateSourceFileBidsName = `UPDATE source_files SET bids_name = ?, modality_type = ? WHERE file_id = ?`

type UpdateSourceFileBidsNameParams struct {
	BidsName     sql.NullString
	ModalityType string
	FileID       string
}

func (q *Queries) UpdateSourceFileBidsName(ctx context.Context, arg UpdateSourceFileBidsNameParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSourceFileBidsName, arg.BidsName, arg.ModalityType, arg.FileID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
