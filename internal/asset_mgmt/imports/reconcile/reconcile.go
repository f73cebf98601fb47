// Package reconcile は台帳スプレッドシートを行データと埋め込み画像に分解し、
// 画像を行に対応付ける。入力はバイト列のみで、副作用を持たない。
package reconcile

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"
)

type Options struct {
	// 空なら先頭シート
	SheetName string
}

type Image struct {
	Bytes    []byte
	Filename string
}

type Result struct {
	SheetName  string
	ParsedRows int
	Rows       []Row
	// データ行番号 → 画像。1行につき最初に現れた画像だけ。
	ImagesByRowIndex map[int]Image
	// シート上で見つかった画像の総数（対応付け前）
	ImagesFound int
}

// Reconcile は xlsx を読み、行と画像の対応を返す。
// ブック本体やシートが読めないときだけ MalformedArchiveError を返す。
// 画像まわりのパーツ欠落は画像なしとして扱う。
func Reconcile(data []byte, opts Options) (*Result, error) {
	ar, err := openArchive(data)
	if err != nil {
		return nil, malformed("not a zip archive", err)
	}
	wbPath := ar.workbookPath()
	if _, ok := ar.lookup(wbPath); !ok {
		return nil, malformed("workbook manifest missing", nil)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("unreadable workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	sheet := opts.SheetName
	switch {
	case sheet == "" && len(sheets) == 0:
		return nil, malformed("workbook has no sheets", nil)
	case sheet == "":
		sheet = sheets[0]
	case !slices.Contains(sheets, sheet):
		return nil, malformed(fmt.Sprintf("sheet %q not found", sheet), nil)
	}

	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, malformed("unreadable sheet", err)
	}

	var c coercer
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		c.date1904 = *props.Date1904
	}
	parsed, rows := parseRows(grid, c)

	anchored := ar.images(wbPath, sheet)
	return &Result{
		SheetName:        sheet,
		ParsedRows:       parsed,
		Rows:             rows,
		ImagesByRowIndex: Associate(anchored),
		ImagesFound:      len(anchored),
	}, nil
}

// Associate は画像のアンカー行をデータ行番号に読み替える（見出し行の分だけ1引く）。
// 見出しより上の画像は捨て、同じ行に複数あれば先に現れたものを使う。
func Associate(images []AnchoredImage) map[int]Image {
	out := map[int]Image{}
	for _, img := range images {
		idx := img.Row - 1
		if idx < 0 {
			continue
		}
		if _, taken := out[idx]; taken {
			continue
		}
		out[idx] = Image{Bytes: img.Bytes, Filename: img.Filename}
	}
	return out
}
