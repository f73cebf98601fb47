package reconcile

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var header = []any{
	"Is Fixed Assets", "Category", "Asset description", "Serial No", "location", "user",
	"Manufacturer", "Value (CNY)", "Commissioning Time", "Remarks",
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, c)
	var b bytes.Buffer
	require.NoError(t, png.Encode(&b, img))
	return b.Bytes()
}

type picture struct {
	cell string
	data []byte
}

// buildWorkbook は excelize で本物の xlsx を作る。
func buildWorkbook(t *testing.T, rows [][]any, pics ...picture) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	for _, p := range pics {
		require.NoError(t, f.AddPictureFromBytes(sheet, p.cell, &excelize.Picture{Extension: ".png", File: p.data}))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// buildZip はメンバーを指定して zip を作る。
func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := zip.NewWriter(&b)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return b.Bytes()
}

// withoutMembers は zip から指定メンバーを取り除いた複製を返す。
func withoutMembers(t *testing.T, data []byte, drop func(name string) bool) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var b bytes.Buffer
	zw := zip.NewWriter(&b)
	for _, f := range zr.File {
		if drop(f.Name) {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = io.Copy(w, rc)
		require.NoError(t, err)
		rc.Close()
	}
	require.NoError(t, zw.Close())
	return b.Bytes()
}

const (
	nsMain = `xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsRels = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`
	nsXdr  = `xmlns:xdr="http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
)

func rels(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Relationships ` + nsRels + `>` +
		strings.Join(items, "") + `</Relationships>`
}

func rel(id, target string) string {
	return `<Relationship Id="` + id + `" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/x" Target="` + target + `"/>`
}

func anchor(kind string, row, col int, embed string) string {
	return `<xdr:` + kind + `><xdr:from><xdr:col>` + strconv.Itoa(col) + `</xdr:col><xdr:colOff>0</xdr:colOff><xdr:row>` + strconv.Itoa(row) +
		`</xdr:row><xdr:rowOff>0</xdr:rowOff></xdr:from><xdr:pic><xdr:nvPicPr/><xdr:blipFill><a:blip r:embed="` + embed +
		`"/></xdr:blipFill></xdr:pic><xdr:clientData/></xdr:` + kind + `>`
}

// handArchive は画像抽出経路だけを持つ最小のパッケージ。
func handArchive(drawingTarget string, anchors string, media map[string]string) map[string]string {
	m := map[string]string{
		"_rels/.rels":                `<?xml version="1.0"?><Relationships ` + nsRels + `><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/></Relationships>`,
		"xl/workbook.xml":            `<workbook ` + nsMain + `><sheets><sheet name="Assets" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": rels(rel("rId1", "worksheets/sheet1.xml")),
		"xl/worksheets/sheet1.xml":   `<worksheet ` + nsMain + `><sheetData/><drawing r:id="rId7"/></worksheet>`,
		"xl/worksheets/_rels/sheet1.xml.rels": rels(rel("rId7", drawingTarget)),
		"xl/drawings/drawing1.xml":             `<xdr:wsDr ` + nsXdr + `>` + anchors + `</xdr:wsDr>`,
		"xl/drawings/_rels/drawing1.xml.rels": rels(
			rel("rIdA", "../media/a.png"),
			rel("rIdB", "../media/b.png"),
			rel("rIdGone", "../media/gone.png"),
		),
	}
	for k, v := range media {
		m[k] = v
	}
	return m
}
