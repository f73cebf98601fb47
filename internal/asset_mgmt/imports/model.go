package imports

import "time"

// ImportBatch は1回の取り込み。作成後は更新しない。
type ImportBatch struct {
	ImportID       string    `json:"import_id"`
	SourceFileRef  string    `json:"source_file_ref"`
	SourceFilename string    `json:"source_filename"`
	CreatedBy      string    `json:"created_by"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ImportRequest struct {
	Filename  string
	Data      []byte
	CreatedBy string
	Notes     *string
	// xlsx のみ。空なら先頭シート
	SheetName string
}

// Warning は行単位の失敗。取り込み全体は止めない。
type Warning struct {
	Code Code `json:"code"`
	// シート上の行番号（見出しが1行目）。バッチ全体に関するものは 0
	Row     int    `json:"row,omitempty"`
	Message string `json:"message"`
}

type Result struct {
	OK                   bool      `json:"ok"`
	SheetName            string    `json:"sheet_name,omitempty"`
	ParsedRows           int       `json:"parsed_rows"`
	ValidUnits           int       `json:"valid_units"`
	EmbeddedImagesFound  int       `json:"embedded_images_found"`
	EmbeddedImagesMapped int       `json:"embedded_images_mapped"`
	ImportID             *string   `json:"import_id"`
	CreatedIDs           []string  `json:"created_ids"`
	Warnings             []Warning `json:"warnings"`
}

type Page struct {
	Limit  int
	Offset int
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

type ListResult struct {
	Items      []ImportBatch `json:"items"`
	Total      int64         `json:"total"`
	NextOffset int           `json:"next_offset"`
}
