package reconcile

import (
	"strings"

	"KURA-backend/internal/asset_mgmt/groupkey"
)

// Row は取り込み対象の1行。
// SourceRowIndex はシート上のデータ行番号（見出しを除いて0始まり）。
// 有効行だけを数えた順番ではない。資産名の無い行や空行も番号を消費するので、
// 画像アンカーの行 (anchorRow-1) とずれない。有効行の連番が欲しい場合は Rows の添字を使う。
type Row struct {
	SourceRowIndex int    `json:"source_row_index"`
	Fields         Fields `json:"fields"`
	GroupKey       string `json:"group_key"`
}

// parseRows は先頭行を見出しとして各行を項目に変換する。
// 空行は数えず、資産名が空の行は黙って捨てる。
func parseRows(grid [][]string, c coercer) (parsed int, rows []Row) {
	if len(grid) == 0 {
		return 0, nil
	}

	// 列 → 項目。同じ見出しが複数あれば先頭の列だけ使う。
	cols := make([]setter, len(grid[0]))
	seen := map[string]bool{}
	for i, h := range grid[0] {
		name := strings.TrimSpace(h)
		set, ok := headerColumns[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		cols[i] = set
	}

	for i, cells := range grid[1:] {
		if blank(cells) {
			continue
		}
		parsed++

		f := Fields{Status: StatusAvailable}
		for j, raw := range cells {
			if j < len(cols) && cols[j] != nil {
				cols[j](&f, raw, c)
			}
		}
		if f.AssetDescription == "" {
			continue
		}
		rows = append(rows, Row{
			SourceRowIndex: i,
			Fields:         f,
			GroupKey:       groupkey.Normalize(f.AssetDescription),
		})
	}
	return parsed, rows
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
