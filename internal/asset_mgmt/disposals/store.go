package disposals

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"KURA-backend/internal/platform/db"
)

// Queries は1トランザクション内の操作。
type Queries interface {
	// 存在しなければ nil, nil。行はロックする
	LockUnit(ctx context.Context, unitID string) (*unitState, error)
	MarkScrapped(ctx context.Context, unitID string) error
	InsertDisposal(ctx context.Context, d *Disposal) error
}

type Store struct{ conn *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{conn: conn} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return db.Serializable(ctx, s.conn, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &txQueries{q: tx})
	})
}

type txQueries struct{ q db.DBTX }

func (t *txQueries) LockUnit(ctx context.Context, unitID string) (*unitState, error) {
	const q = `SELECT unit_id, scrapped, current_holder FROM asset_units WHERE unit_id = ? FOR UPDATE`
	var u unitState
	var scrapped int
	var holder sql.NullString
	err := t.q.QueryRowContext(ctx, q, unitID).Scan(&u.UnitID, &scrapped, &holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Scrapped = scrapped != 0
	u.CurrentHolder = nullToPtr(holder)
	return &u, nil
}

// 保持者なしのときだけ立てる
func (t *txQueries) MarkScrapped(ctx context.Context, unitID string) error {
	const q = `UPDATE asset_units SET scrapped = 1 WHERE unit_id = ? AND scrapped = 0 AND current_holder IS NULL`
	res, err := t.q.ExecContext(ctx, q, unitID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return ErrConflict("unit state changed")
	}
	return nil
}

func (t *txQueries) InsertDisposal(ctx context.Context, d *Disposal) error {
	const q = `
INSERT INTO disposals (disposal_ulid, unit_id, reason, processed_by_id, disposed_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, q, d.DisposalULID, d.UnitID, d.Reason, d.ProcessedByID, d.DisposedAt)
	return err
}

// ---- 参照系 ----

var disposalColumns = []string{"disposal_ulid", "unit_id", "reason", "processed_by_id", "disposed_at"}

func (s *Store) GetByULID(ctx context.Context, ul string) (*Disposal, error) {
	q, args, err := sq.Select(disposalColumns...).From("disposals").Where(sq.Eq{"disposal_ulid": ul}).ToSql()
	if err != nil {
		return nil, err
	}
	d, err := scanDisposal(s.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func applyFilter(b sq.SelectBuilder, f DisposalFilter) sq.SelectBuilder {
	if f.UnitID != nil {
		b = b.Where(sq.Eq{"unit_id": *f.UnitID})
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"disposed_at": *f.From})
	}
	if f.To != nil {
		b = b.Where(sq.Lt{"disposed_at": *f.To})
	}
	return b
}

func (s *Store) List(ctx context.Context, f DisposalFilter, p Page) ([]Disposal, int64, error) {
	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q, args, err := applyFilter(sq.Select(disposalColumns...).From("disposals"), f).
		OrderBy("disposed_at "+order, "disposal_ulid "+order).
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

	list := []Disposal{}
	for rows.Next() {
		d, err := scanDisposal(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq, cargs, err := applyFilter(sq.Select("COUNT(*)").From("disposals"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.conn.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func scanDisposal(row interface{ Scan(dest ...any) error }) (*Disposal, error) {
	var d Disposal
	if err := row.Scan(&d.DisposalULID, &d.UnitID, &d.Reason, &d.ProcessedByID, &d.DisposedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
