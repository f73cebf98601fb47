package lends

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"KURA-backend/internal/platform/db"
)

type Store struct{ conn *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{conn: conn} }

// RunAtomic は SERIALIZABLE のTxで fn を実行する。
func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.Serializable(ctx, s.conn, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, &sqlTx{q: q})
	})
}

type sqlTx struct{ q db.DBTX }

func (t *sqlTx) GetUser(ctx context.Context, userID string) (*UserRef, error) {
	const q = `SELECT id, role, is_disabled FROM auth_accounts WHERE id = ? LIMIT 1`
	var u UserRef
	var disabled int
	err := t.q.QueryRowContext(ctx, q, userID).Scan(&u.ID, &u.Role, &disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Disabled = disabled != 0
	return &u, nil
}

// 最古のものから選ぶ。同時刻は unit_id 順。選んだ行はロックする。
const (
	selectAvailableUnit = `
SELECT unit_id, group_key, asset_description, current_holder, created_at
FROM asset_units
WHERE group_key = ? AND scrapped = 0 AND current_holder IS NULL
ORDER BY created_at ASC, unit_id ASC
LIMIT 1
FOR UPDATE`

	selectHeldUnit = `
SELECT unit_id, group_key, asset_description, current_holder, created_at
FROM asset_units
WHERE group_key = ? AND scrapped = 0 AND current_holder = ?
ORDER BY created_at ASC, unit_id ASC
LIMIT 1
FOR UPDATE`
)

func (t *sqlTx) FirstAvailableUnit(ctx context.Context, groupKey string) (*Unit, error) {
	return t.scanUnit(t.q.QueryRowContext(ctx, selectAvailableUnit, groupKey))
}

func (t *sqlTx) FirstHeldUnit(ctx context.Context, groupKey, userID string) (*Unit, error) {
	return t.scanUnit(t.q.QueryRowContext(ctx, selectHeldUnit, groupKey, userID))
}

func (t *sqlTx) scanUnit(row *sql.Row) (*Unit, error) {
	var u Unit
	var holder sql.NullString
	err := row.Scan(&u.UnitID, &u.GroupKey, &u.AssetDescription, &holder, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if holder.Valid {
		h := holder.String
		u.CurrentHolder = &h
	}
	return &u, nil
}

// status は保持者から決まる（保持者あり ⇔ borrowed）
func (t *sqlTx) SwapHolder(ctx context.Context, unitID string, from, to *string) (bool, error) {
	status := "available"
	if to != nil {
		status = "borrowed"
	}
	const q = `
UPDATE asset_units
SET current_holder = ?, status = ?
WHERE unit_id = ? AND scrapped = 0 AND current_holder <=> ?`
	res, err := t.q.ExecContext(ctx, q, ptrArg(to), status, unitID, ptrArg(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) AppendRecord(ctx context.Context, r *LendRecord) error {
	const q = `
INSERT INTO lend_records
(lend_record_id, user_id, group_key, asset_description, action, unit_id, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, q,
		r.LendRecordID, r.UserID, r.GroupKey, r.AssetDescription, string(r.Action), r.UnitID, r.OccurredAt)
	return err
}

// ---- 参照系 ----

var recordColumns = []string{
	"lend_record_id", "user_id", "group_key", "asset_description", "action", "unit_id", "occurred_at",
}

func applyRecordFilter(b sq.SelectBuilder, f RecordFilter) sq.SelectBuilder {
	if f.UserID != nil {
		b = b.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.GroupKey != nil {
		b = b.Where(sq.Eq{"group_key": *f.GroupKey})
	}
	if f.Action != nil {
		b = b.Where(sq.Eq{"action": string(*f.Action)})
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"occurred_at": *f.From})
	}
	if f.To != nil {
		b = b.Where(sq.Lt{"occurred_at": *f.To})
	}
	return b
}

func (s *Store) ListRecords(ctx context.Context, f RecordFilter, p Page) ([]LendRecord, int64, error) {
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

	b := applyRecordFilter(sq.Select(recordColumns...).From("lend_records"), f).
		OrderBy("occurred_at "+order, "lend_record_id "+order).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset))
	q, args, err := b.ToSql()
	if err != nil {
		return nil, 0, err
	}
	list, err := s.queryRecords(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}

	cq, cargs, err := applyRecordFilter(sq.Select("COUNT(*)").From("lend_records"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.conn.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// AllRecords は保有数の計算用に全件を古い順に返す。userID 指定時はその利用者のみ。
func (s *Store) AllRecords(ctx context.Context, userID *string) ([]LendRecord, error) {
	q, args, err := applyRecordFilter(sq.Select(recordColumns...).From("lend_records"), RecordFilter{UserID: userID}).
		OrderBy("occurred_at ASC", "lend_record_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, q, args...)
}

func (s *Store) queryRecords(ctx context.Context, q string, args ...any) ([]LendRecord, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LendRecord{}
	for rows.Next() {
		var r LendRecord
		var action string
		if err := rows.Scan(&r.LendRecordID, &r.UserID, &r.GroupKey, &r.AssetDescription, &action, &r.UnitID, &r.OccurredAt); err != nil {
			return nil, err
		}
		r.Action = Action(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

func ptrArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
