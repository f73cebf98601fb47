package units

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"KURA-backend/internal/platform/db"
)

type Store struct{ conn *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{conn: conn} }

var unitColumns = []string{
	"unit_id", "group_key", "asset_description", "status", "current_holder", "scrapped",
	"image_ref", "import_ref", "is_fixed_assets", "category", "serial_no", "location",
	"excel_user", "manufacturer", "value_cny", "commissioning_time", "metrology_validity_period",
	"metrology_requirement", "metrology_cost", "remarks", "asset_name", "created_at", "updated_at",
}

// Insert は新しい1台を available / 保持者なしで登録する。
func (s *Store) Insert(ctx context.Context, unitID, groupKey string, in CreateUnitRequest, now time.Time) error {
	q, args, err := sq.Insert("asset_units").
		Columns(
			"unit_id", "group_key", "asset_description", "status", "current_holder", "scrapped",
			"image_ref", "import_ref", "is_fixed_assets", "category", "serial_no", "location",
			"excel_user", "manufacturer", "value_cny", "commissioning_time", "metrology_validity_period",
			"metrology_requirement", "metrology_cost", "remarks", "asset_name", "created_at", "updated_at",
		).
		Values(
			unitID, groupKey, strings.TrimSpace(in.AssetDescription), StatusAvailable, nil, 0,
			in.ImageRef, in.ImportRef, in.IsFixedAssets, in.Category, in.SerialNo, in.Location,
			in.ExcelUser, in.Manufacturer, in.ValueCNY, in.CommissioningTime, in.MetrologyValidityPeriod,
			in.MetrologyRequirement, in.MetrologyCost, in.Remarks, in.AssetName, now, now,
		).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx, q, args...)
	return err
}

func (s *Store) Get(ctx context.Context, unitID string) (*UnitResponse, error) {
	q, args, err := sq.Select(unitColumns...).From("asset_units").Where(sq.Eq{"unit_id": unitID}).ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUnit(s.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func applyUnitFilter(b sq.SelectBuilder, f UnitFilter) sq.SelectBuilder {
	if f.GroupKey != nil {
		b = b.Where(sq.Eq{"group_key": *f.GroupKey})
	}
	if f.Status != nil {
		b = b.Where(sq.Eq{"status": *f.Status})
	}
	if f.Scrapped != nil {
		b = b.Where(sq.Eq{"scrapped": *f.Scrapped})
	}
	if f.Holder != nil {
		b = b.Where(sq.Eq{"current_holder": *f.Holder})
	}
	if f.ImportID != nil {
		b = b.Where(sq.Eq{"import_ref": *f.ImportID})
	}
	if f.Q != nil && strings.TrimSpace(*f.Q) != "" {
		like := "%" + escapeLike(strings.TrimSpace(*f.Q)) + "%"
		b = b.Where(sq.Or{
			sq.Like{"asset_description": like},
			sq.Like{"serial_no": like},
			sq.Like{"location": like},
		})
	}
	return b
}

func (s *Store) List(ctx context.Context, f UnitFilter, p Page) ([]UnitResponse, int64, error) {
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

	q, args, err := applyUnitFilter(sq.Select(unitColumns...).From("asset_units"), f).
		OrderBy("created_at "+order, "unit_id "+order).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	list, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}

	cq, cargs, err := applyUnitFilter(sq.Select("COUNT(*)").From("asset_units"), f).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.conn.QueryRowContext(ctx, cq, cargs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// All は書き出し用。登録順。
func (s *Store) All(ctx context.Context) ([]UnitResponse, error) {
	q, args, err := sq.Select(unitColumns...).From("asset_units").OrderBy("created_at ASC", "unit_id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q, args...)
}

// Delete は貸出中でない1台を削除する。貸出ログは残る。
func (s *Store) Delete(ctx context.Context, unitID string) error {
	return db.RunInTx(ctx, s.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		var holder sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT current_holder FROM asset_units WHERE unit_id = ? FOR UPDATE`, unitID).Scan(&holder)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("unit not found")
		}
		if err != nil {
			return err
		}
		if holder.Valid {
			return ErrConflict("unit is currently borrowed")
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM asset_units WHERE unit_id = ?`, unitID)
		return err
	})
}

// Groups は group_key ごとの集計。userID の保持数も合わせて返す。
func (s *Store) Groups(ctx context.Context, userID string, q *string) ([]GroupSummary, error) {
	b := sq.Select(
		"group_key",
		"MIN(asset_description)",
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN scrapped = 0 AND current_holder IS NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN scrapped = 0 AND current_holder IS NOT NULL THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN scrapped = 1 THEN 1 ELSE 0 END), 0)",
	).
		Column(sq.Expr("COALESCE(SUM(CASE WHEN current_holder = ? THEN 1 ELSE 0 END), 0)", userID)).
		From("asset_units").
		GroupBy("group_key").
		OrderBy("group_key ASC")
	if q != nil && strings.TrimSpace(*q) != "" {
		// group_key は utf8mb4_bin なので検索は説明文側で行う
		b = b.Where(sq.Like{"asset_description": "%" + escapeLike(strings.TrimSpace(*q)) + "%"})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GroupSummary{}
	for rows.Next() {
		var g GroupSummary
		if err := rows.Scan(&g.GroupKey, &g.Description, &g.Total, &g.Available, &g.Borrowed, &g.Scrapped, &g.HeldCount); err != nil {
			return nil, err
		}
		g.HeldByMe = g.HeldCount > 0
		out = append(out, g)
	}
	return out, rows.Err()
}

// RenameGroup はグループ内の全台の名称とキーを書き換える。貸出中の台があれば拒否。
func (s *Store) RenameGroup(ctx context.Context, oldKey, newDescription, newKey string) (int64, error) {
	var updated int64
	err := db.Serializable(ctx, s.conn, func(ctx context.Context, tx db.DBTX) error {
		var total, borrowed int64
		err := tx.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN current_holder IS NOT NULL THEN 1 ELSE 0 END), 0)
FROM asset_units WHERE group_key = ? FOR UPDATE`, oldKey).Scan(&total, &borrowed)
		if err != nil {
			return err
		}
		if total == 0 {
			return ErrNotFound("group not found")
		}
		if borrowed > 0 {
			return ErrConflict("group has borrowed units")
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE asset_units SET asset_description = ?, group_key = ? WHERE group_key = ?`,
			newDescription, newKey, oldKey)
		if err != nil {
			return err
		}
		updated, err = res.RowsAffected()
		return err
	})
	return updated, err
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]UnitResponse, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []UnitResponse{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func scanUnit(row interface{ Scan(dest ...any) error }) (*UnitResponse, error) {
	var u UnitResponse
	var holder, imageRef, importRef, category, serialNo, location sql.NullString
	var excelUser, manufacturer, metrologyReq, remarks, assetName sql.NullString
	var isFixed sql.NullBool
	var value, metrologyCost sql.NullFloat64
	var commissioning, validity sql.NullTime
	if err := row.Scan(
		&u.UnitID, &u.GroupKey, &u.AssetDescription, &u.Status, &holder, &u.Scrapped,
		&imageRef, &importRef, &isFixed, &category, &serialNo, &location,
		&excelUser, &manufacturer, &value, &commissioning, &validity,
		&metrologyReq, &metrologyCost, &remarks, &assetName, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.CurrentHolder = nullStr(holder)
	u.ImageRef = nullStr(imageRef)
	u.ImportRef = nullStr(importRef)
	u.Category = nullStr(category)
	u.SerialNo = nullStr(serialNo)
	u.Location = nullStr(location)
	u.ExcelUser = nullStr(excelUser)
	u.Manufacturer = nullStr(manufacturer)
	u.MetrologyRequirement = nullStr(metrologyReq)
	u.Remarks = nullStr(remarks)
	u.AssetName = nullStr(assetName)
	if isFixed.Valid {
		u.IsFixedAssets = &isFixed.Bool
	}
	if value.Valid {
		u.ValueCNY = &value.Float64
	}
	if metrologyCost.Valid {
		u.MetrologyCost = &metrologyCost.Float64
	}
	if commissioning.Valid {
		u.CommissioningTime = &commissioning.Time
	}
	if validity.Valid {
		u.MetrologyValidityPeriod = &validity.Time
	}
	return &u, nil
}

func nullStr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
