package lends

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"KURA-backend/internal/asset_mgmt/groupkey"
)

// Atomic は直列化可能なトランザクション境界。
// fn が nil を返したときだけコミットし、それ以外はロールバックして fn のエラーを返す。
type Atomic interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx は1トランザクション内で使える操作。
type Tx interface {
	// 存在しなければ nil, nil
	GetUser(ctx context.Context, userID string) (*UserRef, error)
	// 廃棄されておらず保持者のいない最古の1台。無ければ nil, nil
	FirstAvailableUnit(ctx context.Context, groupKey string) (*Unit, error)
	// userID が保持している最古の1台。無ければ nil, nil
	FirstHeldUnit(ctx context.Context, groupKey, userID string) (*Unit, error)
	// current_holder が from のときだけ to に差し替え、status も合わせる。差し替えたら true
	SwapHolder(ctx context.Context, unitID string, from, to *string) (bool, error)
	AppendRecord(ctx context.Context, rec *LendRecord) error
}

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

// Engine は貸出・返却の状態遷移を行う。リトライはしない。
type Engine struct {
	atomic Atomic
	clock  Clock
	id     IDGen
	log    *zap.Logger
	tracer trace.Tracer
}

func NewEngine(a Atomic, log *zap.Logger) *Engine {
	return &Engine{
		atomic: a,
		clock:  realClock{},
		id:     ulidGen{},
		log:    log,
		tracer: otel.Tracer("kura/lends"),
	}
}

func (e *Engine) Borrow(ctx context.Context, groupKey, userID string) (Outcome, error) {
	return e.transition(ctx, ActionLend, groupKey, userID)
}

func (e *Engine) ReturnUnit(ctx context.Context, groupKey, userID string) (Outcome, error) {
	return e.transition(ctx, ActionReturn, groupKey, userID)
}

func (e *Engine) Apply(ctx context.Context, req TransitionRequest) (Outcome, error) {
	if !req.Action.Valid() {
		return Outcome{}, ErrInvalid("action must be lend or return")
	}
	return e.transition(ctx, req.Action, req.GroupKey, req.UserID)
}

func (e *Engine) transition(ctx context.Context, action Action, rawKey, rawUser string) (Outcome, error) {
	key := groupkey.Normalize(rawKey)
	if key == "" {
		return Outcome{}, ErrInvalid("group_key is required")
	}
	userID := strings.TrimSpace(rawUser)
	if userID == "" {
		return Outcome{}, ErrInvalid("user_id is required")
	}

	ctx, span := e.tracer.Start(ctx, "lends."+string(action), trace.WithAttributes(
		attribute.String("group_key", key),
		attribute.String("user_id", userID),
	))
	defer span.End()

	now := e.clock.Now()
	recID := e.id.NewULID(now)

	var out Outcome
	err := e.atomic.RunAtomic(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrInvalid("user not found")
		}
		if u.Disabled {
			return ErrInvalid("user is suspended")
		}

		var (
			unit     *Unit
			from, to *string
			miss     *APIError
		)
		switch action {
		case ActionLend:
			unit, err = tx.FirstAvailableUnit(ctx, key)
			to = &userID
			miss = ErrNoAvailable("no available unit in group")
		case ActionReturn:
			unit, err = tx.FirstHeldUnit(ctx, key, userID)
			from = &userID
			miss = ErrNoHeld("no unit of this group is held by the user")
		}
		if err != nil {
			return err
		}
		if unit == nil {
			return miss
		}

		// 行ロック済みでも条件付き更新で保持者を確かめる
		ok, err := tx.SwapHolder(ctx, unit.UnitID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return miss
		}

		rec := &LendRecord{
			LendRecordID:     recID,
			UserID:           userID,
			GroupKey:         unit.GroupKey,
			AssetDescription: unit.AssetDescription,
			Action:           action,
			UnitID:           unit.UnitID,
			OccurredAt:       now,
		}
		if err := tx.AppendRecord(ctx, rec); err != nil {
			return err
		}

		out = Outcome{Success: true, UnitID: unit.UnitID, LendRecordID: recID}
		return nil
	})
	if err != nil {
		code := CodeOf(err)
		span.SetAttributes(attribute.String("error_kind", string(code)))
		if code == CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.log.Error("lend transition failed",
				zap.String("action", string(action)), zap.String("group_key", key),
				zap.String("user_id", userID), zap.Error(err))
		} else {
			e.log.Info("lend transition refused",
				zap.String("action", string(action)), zap.String("group_key", key),
				zap.String("user_id", userID), zap.String("error_kind", string(code)))
		}
		return Outcome{}, err
	}

	span.SetAttributes(attribute.String("unit_id", out.UnitID))
	e.log.Info("lend transition",
		zap.String("action", string(action)), zap.String("group_key", key),
		zap.String("user_id", userID), zap.String("unit_id", out.UnitID))
	return out, nil
}
