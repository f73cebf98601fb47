package auth

import (
	"context"
	"database/sql"
	"errors"
)

type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	List(ctx context.Context) ([]Account, error)
	UpdateRole(ctx context.Context, id, role string) (int64, error)
	SetDisabled(ctx context.Context, id string, disabled bool) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectAccount = `
SELECT id, username, password_hash, role, is_disabled, created_at
FROM auth_accounts
`

func scanAccount(row interface{ Scan(dest ...any) error }) (*Account, error) {
	var a Account
	var isDisabledInt int
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &isDisabledInt, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE username = ? LIMIT 1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	const q = `
INSERT INTO auth_accounts (id, username, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, ?, 0, ?)
`
	_, err := s.db.ExecContext(ctx, q, a.ID, a.Username, a.PasswordHash, a.Role, a.CreatedAt)
	return err
}

func (s *Store) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccount+`ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id, role string) (int64, error) {
	return s.exec(ctx, `UPDATE auth_accounts SET role = ? WHERE id = ?`, role, id)
}

func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) (int64, error) {
	v := 0
	if disabled {
		v = 1
	}
	return s.exec(ctx, `UPDATE auth_accounts SET is_disabled = ? WHERE id = ?`, v, id)
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	return s.exec(ctx, `DELETE FROM auth_accounts WHERE id = ?`, id)
}

// 値が変わらない UPDATE は 0 件になるので、存在確認は呼び出し側で行う。
func (s *Store) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
