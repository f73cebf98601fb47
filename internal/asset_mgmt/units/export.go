package units

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Assets"

var exportHeader = []string{
	"is_fixed_assets", "category", "asset_description", "serial_no", "location", "user",
	"manufacturer", "value_cny", "commissioning_time", "metrology_validity_period",
	"metrology_requirement", "metrology_cost", "remarks", "asset_name", "current_holder",
}

// ExportFilename は書き出しファイル名 (assets_export_YYYY-MM-DD.xlsx)。
func ExportFilename(now time.Time) string {
	return "assets_export_" + now.UTC().Format("2006-01-02") + ".xlsx"
}

// Export は全台を1シートの xlsx にする。
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	list, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return writeWorkbook(list)
}

func writeWorkbook(list []UnitResponse) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return nil, err
	}

	head := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		head[i] = h
	}
	if err := sw.SetRow("A1", head); err != nil {
		return nil, err
	}

	for i, u := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, exportRow(u)); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// 空欄は空文字にする
func exportRow(u UnitResponse) []any {
	return []any{
		boolCell(u.IsFixedAssets),
		strCell(u.Category),
		u.AssetDescription,
		strCell(u.SerialNo),
		strCell(u.Location),
		strCell(u.ExcelUser),
		strCell(u.Manufacturer),
		numCell(u.ValueCNY),
		timeCell(u.CommissioningTime),
		timeCell(u.MetrologyValidityPeriod),
		strCell(u.MetrologyRequirement),
		numCell(u.MetrologyCost),
		strCell(u.Remarks),
		strCell(u.AssetName),
		strCell(u.CurrentHolder),
	}
}

func strCell(p *string) any {
	if p == nil {
		return ""
	}
	return *p
}

func numCell(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func boolCell(p *bool) any {
	if p == nil {
		return ""
	}
	return strconv.FormatBool(*p)
}

func timeCell(p *time.Time) any {
	if p == nil {
		return ""
	}
	return p.UTC().Format("2006-01-02T15:04:05.000Z")
}
