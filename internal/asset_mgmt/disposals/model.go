package disposals

import (
	"database/sql"
	"time"
)

// Disposal は廃棄の監査記録。unit の scrapped を立てたのと同じTxで書く。
type Disposal struct {
	DisposalULID  string
	UnitID        string
	Reason        sql.NullString
	ProcessedByID sql.NullString
	DisposedAt    time.Time
}

// unitState は廃棄判定に使う unit の状態
type unitState struct {
	UnitID        string
	Scrapped      bool
	CurrentHolder *string
}
