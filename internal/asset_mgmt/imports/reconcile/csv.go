package reconcile

import (
	"bytes"
	"encoding/csv"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReconcileCSV は CSV 版の台帳を読む。画像は持たない。
// UTF-8 でなければ GB18030 として読み直す。
func ReconcileCSV(data []byte) (*Result, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
		if err != nil {
			return nil, malformed("undecodable csv", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	grid, err := r.ReadAll()
	if err != nil {
		return nil, malformed("unreadable csv", err)
	}

	parsed, rows := parseRows(grid, coercer{})
	return &Result{
		ParsedRows:       parsed,
		Rows:             rows,
		ImagesByRowIndex: map[int]Image{},
	}, nil
}
