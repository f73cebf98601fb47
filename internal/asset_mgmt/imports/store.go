package imports

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
)

type Store struct{ conn *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{conn: conn} }

var batchColumns = []string{"import_id", "source_file_ref", "source_filename", "created_by", "notes", "created_at"}

func (s *Store) InsertBatch(ctx context.Context, b *ImportBatch) error {
	q, args, err := sq.Insert("asset_imports").
		Columns(batchColumns...).
		Values(b.ImportID, b.SourceFileRef, b.SourceFilename, b.CreatedBy, b.Notes, b.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, q, args...)
	return err
}

func (s *Store) GetBatch(ctx context.Context, importID string) (*ImportBatch, error) {
	q, args, err := sq.Select(batchColumns...).From("asset_imports").Where(sq.Eq{"import_id": importID}).ToSql()
	if err != nil {
		return nil, err
	}
	b, err := scanBatch(s.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// ListBatches は新しい順。
func (s *Store) ListBatches(ctx context.Context, p Page) ([]ImportBatch, int64, error) {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	q, args, err := sq.Select(batchColumns...).From("asset_imports").
		OrderBy("created_at DESC", "import_id DESC").
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []ImportBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_imports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func scanBatch(row interface{ Scan(dest ...any) error }) (*ImportBatch, error) {
	var b ImportBatch
	var notes sql.NullString
	if err := row.Scan(&b.ImportID, &b.SourceFileRef, &b.SourceFilename, &b.CreatedBy, &notes, &b.CreatedAt); err != nil {
		return nil, err
	}
	if notes.Valid {
		b.Notes = &notes.String
	}
	return &b, nil
}
