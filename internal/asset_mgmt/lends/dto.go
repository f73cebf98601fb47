package lends

import "time"

// POST /lend-records
// group_key が空なら asset_description を正規化して使う。
type CreateRecordRequest struct {
	GroupKey         string `json:"group_key"`
	AssetDescription string `json:"asset_description"`
	Action           Action `json:"action" binding:"required,oneof=lend return"`
}

type RecordFilter struct {
	UserID   *string
	GroupKey *string
	Action   *Action
	From     *time.Time
	To       *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Clamp は limit を 1..maxLimit、offset を 0 以上に丸める。
func (p Page) Clamp() Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type ListRecordsResult struct {
	Items      []LendRecord `json:"items"`
	Total      int64        `json:"total"`
	NextOffset int          `json:"next_offset"`
}

type HoldingsResult struct {
	Items []Holding `json:"items"`
}
