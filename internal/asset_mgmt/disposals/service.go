package disposals

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

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

// ---- Service ----

type disposalStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	GetByULID(ctx context.Context, ul string) (*Disposal, error)
	List(ctx context.Context, f DisposalFilter, p Page) ([]Disposal, int64, error)
}

type Service struct {
	store disposalStore
	clock Clock
	id    IDGen
	log   *zap.Logger
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return newService(NewStore(conn), log)
}

func newService(st disposalStore, log *zap.Logger) *Service {
	return &Service{
		store: st,
		clock: realClock{},
		id:    ulidGen{},
		log:   log,
	}
}

// POST /units/:unit_id/disposals
// 廃棄は終端状態。貸出中の機器は先に返却させる。
func (s *Service) Scrap(ctx context.Context, unitID string, in CreateDisposalRequest, processedBy string) (DisposalResponse, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return DisposalResponse{}, ErrInvalid("unit_id is required")
	}
	now := s.clock.Now()
	duid := s.id.NewULID(now)

	var resp DisposalResponse
	err := s.store.WithTx(ctx, func(ctx context.Context, q Queries) error {
		u, err := q.LockUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrNotFound("unit not found")
		}
		if u.Scrapped {
			return ErrConflict("unit already scrapped")
		}
		if u.CurrentHolder != nil {
			return ErrConflict("unit is currently borrowed")
		}

		if err := q.MarkScrapped(ctx, unitID); err != nil {
			return err
		}

		m := &Disposal{
			DisposalULID:  duid,
			UnitID:        unitID,
			Reason:        toNullString(in.Reason),
			ProcessedByID: toNullString(&processedBy),
			DisposedAt:    now,
		}
		if err := q.InsertDisposal(ctx, m); err != nil {
			return err
		}
		resp = toResponse(m)
		return nil
	})
	if err != nil {
		var api *APIError
		if !errors.As(err, &api) {
			s.log.Error("scrap failed", zap.String("unit_id", unitID), zap.Error(err))
		}
		return DisposalResponse{}, err
	}
	s.log.Info("unit scrapped", zap.String("unit_id", unitID), zap.String("disposal_ulid", duid), zap.String("by", processedBy))
	return resp, nil
}

func (s *Service) GetDisposalByULID(ctx context.Context, ul string) (DisposalResponse, error) {
	m, err := s.store.GetByULID(ctx, ul)
	if err != nil {
		return DisposalResponse{}, err
	}
	if m == nil {
		return DisposalResponse{}, ErrNotFound("disposal not found")
	}
	return toResponse(m), nil
}

func (s *Service) ListDisposals(ctx context.Context, f DisposalFilter, p Page) (ListResult, error) {
	p = p.Clamp()
	rows, total, err := s.store.List(ctx, f, p)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]DisposalResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}

// ---- helpers ----
func toResponse(m *Disposal) DisposalResponse {
	return DisposalResponse{
		DisposalULID:  m.DisposalULID,
		UnitID:        m.UnitID,
		Reason:        nullToPtr(m.Reason),
		ProcessedByID: nullToPtr(m.ProcessedByID),
		DisposedAt:    m.DisposedAt,
	}
}

func toNullString(s *string) (ns sql.NullString) {
	if s != nil && strings.TrimSpace(*s) != "" {
		ns.Valid, ns.String = true, strings.TrimSpace(*s)
	}
	return
}

func nullToPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
