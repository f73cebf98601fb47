package disposals

import "time"

type CreateDisposalRequest struct {
	Reason *string `json:"reason,omitempty" binding:"omitempty,max=2000"`
}

type DisposalResponse struct {
	DisposalULID  string    `json:"disposal_ulid"`
	UnitID        string    `json:"unit_id"`
	Reason        *string   `json:"reason,omitempty"`
	ProcessedByID *string   `json:"processed_by_id,omitempty"`
	DisposedAt    time.Time `json:"disposed_at"`
}

type ListResult struct {
	Items      []DisposalResponse `json:"items"`
	Total      int64              `json:"total"`
	NextOffset int                `json:"next_offset"`
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

type DisposalFilter struct {
	UnitID *string
	From   *time.Time
	To     *time.Time
}
