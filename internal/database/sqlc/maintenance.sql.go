package sqldb

import "context"

const deleteAllSourceFiles = `DELETE FROM source_files`

func (q *Queries) DeleteAllSourceFiles(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSourceFiles)
	return err
}
