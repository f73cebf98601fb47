package lends

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"KURA-backend/internal/asset_mgmt/groupkey"
)

// RecordReader は貸出ログの参照。
type RecordReader interface {
	ListRecords(ctx context.Context, f RecordFilter, p Page) ([]LendRecord, int64, error)
	AllRecords(ctx context.Context, userID *string) ([]LendRecord, error)
}

type Service struct {
	engine  *Engine
	records RecordReader
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	st := NewStore(conn)
	return newService(st, st, log)
}

func newService(a Atomic, r RecordReader, log *zap.Logger) *Service {
	return &Service{engine: NewEngine(a, log), records: r}
}

// Transition は呼び出し元の利用者として貸出/返却を行う。
func (s *Service) Transition(ctx context.Context, userID string, in CreateRecordRequest) (Outcome, error) {
	key := in.GroupKey
	if strings.TrimSpace(key) == "" {
		key = in.AssetDescription
	}
	return s.engine.Apply(ctx, TransitionRequest{GroupKey: key, UserID: userID, Action: in.Action})
}

func (s *Service) ListRecords(ctx context.Context, f RecordFilter, p Page) (ListRecordsResult, error) {
	p = p.Clamp()
	if f.GroupKey != nil {
		k := groupkey.Normalize(*f.GroupKey)
		f.GroupKey = &k
	}
	items, total, err := s.records.ListRecords(ctx, f, p)
	if err != nil {
		return ListRecordsResult{}, err
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListRecordsResult{Items: items, Total: total, NextOffset: next}, nil
}

func (s *Service) Holdings(ctx context.Context, userID *string) (HoldingsResult, error) {
	recs, err := s.records.AllRecords(ctx, userID)
	if err != nil {
		return HoldingsResult{}, err
	}
	return HoldingsResult{Items: OutstandingHoldings(recs)}, nil
}
