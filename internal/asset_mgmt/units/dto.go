package units

import "time"

const (
	StatusAvailable = "available"
	StatusBorrowed  = "borrowed"
)

// ===== Requests =====

// CreateUnitRequest は1台分の登録内容。取り込み処理からも使う。
type CreateUnitRequest struct {
	AssetDescription        string     `json:"asset_description" binding:"required,notblank,max=255"`
	IsFixedAssets           *bool      `json:"is_fixed_assets,omitempty"`
	Category                *string    `json:"category,omitempty"`
	SerialNo                *string    `json:"serial_no,omitempty"`
	Location                *string    `json:"location,omitempty"`
	ExcelUser               *string    `json:"excel_user,omitempty"`
	Manufacturer            *string    `json:"manufacturer,omitempty"`
	ValueCNY                *float64   `json:"value_cny,omitempty"`
	CommissioningTime       *time.Time `json:"commissioning_time,omitempty"`
	MetrologyValidityPeriod *time.Time `json:"metrology_validity_period,omitempty"`
	MetrologyRequirement    *string    `json:"metrology_requirement,omitempty"`
	MetrologyCost           *float64   `json:"metrology_cost,omitempty"`
	Remarks                 *string    `json:"remarks,omitempty"`
	AssetName               *string    `json:"asset_name,omitempty"`
	ImageRef                *string    `json:"image_ref,omitempty"`
	// 取り込みバッチ。API からは指定させない
	ImportRef *string `json:"-"`
}

type RenameGroupRequest struct {
	GroupKey       string `json:"group_key" binding:"required,notblank"`
	NewDescription string `json:"new_description" binding:"required,notblank,max=255"`
}

// ===== Responses =====

type UnitResponse struct {
	UnitID                  string     `json:"unit_id"`
	GroupKey                string     `json:"group_key"`
	AssetDescription        string     `json:"asset_description"`
	Status                  string     `json:"status"`
	CurrentHolder           *string    `json:"current_holder,omitempty"`
	Scrapped                bool       `json:"scrapped"`
	ImageRef                *string    `json:"image_ref,omitempty"`
	ImportRef               *string    `json:"import_ref,omitempty"`
	IsFixedAssets           *bool      `json:"is_fixed_assets,omitempty"`
	Category                *string    `json:"category,omitempty"`
	SerialNo                *string    `json:"serial_no,omitempty"`
	Location                *string    `json:"location,omitempty"`
	ExcelUser               *string    `json:"excel_user,omitempty"`
	Manufacturer            *string    `json:"manufacturer,omitempty"`
	ValueCNY                *float64   `json:"value_cny,omitempty"`
	CommissioningTime       *time.Time `json:"commissioning_time,omitempty"`
	MetrologyValidityPeriod *time.Time `json:"metrology_validity_period,omitempty"`
	MetrologyRequirement    *string    `json:"metrology_requirement,omitempty"`
	MetrologyCost           *float64   `json:"metrology_cost,omitempty"`
	Remarks                 *string    `json:"remarks,omitempty"`
	AssetName               *string    `json:"asset_name,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// GroupSummary は group_key ごとの台数。available/borrowed は廃棄済みを含まない。
type GroupSummary struct {
	GroupKey    string `json:"group_key"`
	Description string `json:"description"`
	Total       int    `json:"total"`
	Available   int    `json:"available"`
	Borrowed    int    `json:"borrowed"`
	Scrapped    int    `json:"scrapped"`
	HeldByMe    bool   `json:"held_by_me"`
	HeldCount   int    `json:"held_by_me_count"`
}

type RenameResult struct {
	OldGroupKey string `json:"old_group_key"`
	GroupKey    string `json:"group_key"`
	Updated     int64  `json:"updated"`
}

type ListResult struct {
	Items      []UnitResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

// ===== Listing helpers =====

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

type UnitFilter struct {
	GroupKey *string
	Status   *string
	Scrapped *bool
	Holder   *string
	ImportID *string
	Q        *string // asset_description / serial_no / location の部分一致
}
