package lends

import "time"

type Action string

const (
	ActionLend   Action = "lend"
	ActionReturn Action = "return"
)

func (a Action) Valid() bool { return a == ActionLend || a == ActionReturn }

// Unit は遷移対象として選ばれた1台。
type Unit struct {
	UnitID           string
	GroupKey         string
	AssetDescription string
	CurrentHolder    *string
	CreatedAt        time.Time
}

// UserRef は遷移の可否判定に必要な利用者情報だけを持つ。
type UserRef struct {
	ID       string
	Role     string
	Disabled bool
}

// LendRecord は追記専用の貸出/返却ログ1行。
type LendRecord struct {
	LendRecordID     string    `json:"lend_record_id"`
	UserID           string    `json:"user_id"`
	GroupKey         string    `json:"group_key"`
	AssetDescription string    `json:"asset_description"`
	Action           Action    `json:"action"`
	UnitID           string    `json:"unit_id"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type TransitionRequest struct {
	GroupKey string
	UserID   string
	Action   Action
}

// Outcome は遷移結果の境界表現。
// 成功時 {success:true, unit_id, lend_record_id}、失敗時 {success:false, error_kind}。
type Outcome struct {
	Success      bool   `json:"success"`
	UnitID       string `json:"unit_id,omitempty"`
	LendRecordID string `json:"lend_record_id,omitempty"`
	ErrorKind    Code   `json:"error_kind,omitempty"`
	Message      string `json:"message,omitempty"`
}
