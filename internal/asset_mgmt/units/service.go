package units

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	ulid "github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"KURA-backend/internal/asset_mgmt/groupkey"
)

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type unitStore interface {
	Insert(ctx context.Context, unitID, groupKey string, in CreateUnitRequest, now time.Time) error
	Get(ctx context.Context, unitID string) (*UnitResponse, error)
	List(ctx context.Context, f UnitFilter, p Page) ([]UnitResponse, int64, error)
	All(ctx context.Context) ([]UnitResponse, error)
	Delete(ctx context.Context, unitID string) error
	Groups(ctx context.Context, userID string, q *string) ([]GroupSummary, error)
	RenameGroup(ctx context.Context, oldKey, newDescription, newKey string) (int64, error)
}

type Service struct {
	store unitStore
	clock Clock
	id    IDGen
	log   *zap.Logger
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return newService(NewStore(conn), log)
}

func newService(st unitStore, log *zap.Logger) *Service {
	return &Service{store: st, clock: realClock{}, id: ulidGen{}, log: log}
}

// Create は1台登録する。group_key は asset_description を正規化したもの。
func (s *Service) Create(ctx context.Context, in CreateUnitRequest) (UnitResponse, error) {
	key := groupkey.Normalize(in.AssetDescription)
	if key == "" {
		return UnitResponse{}, ErrInvalid("asset_description is required")
	}
	in.AssetDescription = strings.TrimSpace(in.AssetDescription)

	now := s.clock.Now()
	id := s.id.NewULID(now)
	if err := s.store.Insert(ctx, id, key, in, now); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1452 { // foreign key
			return UnitResponse{}, ErrInvalid("unknown import batch")
		}
		return UnitResponse{}, err
	}

	out, err := s.store.Get(ctx, id)
	if err != nil {
		return UnitResponse{}, err
	}
	if out == nil {
		return UnitResponse{}, ErrInternal("created unit not found")
	}
	return *out, nil
}

func (s *Service) Get(ctx context.Context, unitID string) (UnitResponse, error) {
	out, err := s.store.Get(ctx, unitID)
	if err != nil {
		return UnitResponse{}, err
	}
	if out == nil {
		return UnitResponse{}, ErrNotFound("unit not found")
	}
	return *out, nil
}

func (s *Service) List(ctx context.Context, f UnitFilter, p Page) (ListResult, error) {
	p = p.Clamp()
	if f.Status != nil && *f.Status != StatusAvailable && *f.Status != StatusBorrowed {
		return ListResult{}, ErrInvalid("status must be available or borrowed")
	}
	if f.GroupKey != nil {
		k := groupkey.Normalize(*f.GroupKey)
		f.GroupKey = &k
	}
	items, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

func (s *Service) Delete(ctx context.Context, unitID string) error {
	if err := s.store.Delete(ctx, unitID); err != nil {
		return err
	}
	s.log.Info("unit deleted", zap.String("unit_id", unitID))
	return nil
}

func (s *Service) Groups(ctx context.Context, userID string, q *string) ([]GroupSummary, error) {
	return s.store.Groups(ctx, userID, q)
}

// RenameGroup はグループの表示名を変える。新しい group_key は新名称の正規化。
func (s *Service) RenameGroup(ctx context.Context, in RenameGroupRequest) (RenameResult, error) {
	oldKey := groupkey.Normalize(in.GroupKey)
	newKey := groupkey.Normalize(in.NewDescription)
	if oldKey == "" || newKey == "" {
		return RenameResult{}, ErrInvalid("group_key and new_description are required")
	}
	n, err := s.store.RenameGroup(ctx, oldKey, strings.TrimSpace(in.NewDescription), newKey)
	if err != nil {
		return RenameResult{}, err
	}
	s.log.Info("group renamed", zap.String("from", oldKey), zap.String("to", newKey), zap.Int64("units", n))
	return RenameResult{OldGroupKey: oldKey, GroupKey: newKey, Updated: n}, nil
}
