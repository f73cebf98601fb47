package reconcile

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Fields は1行分の台帳項目。値が空または解釈できない項目は nil。
type Fields struct {
	IsFixedAssets           *bool    `json:"is_fixed_assets,omitempty"`
	Category                *string  `json:"category,omitempty"`
	AssetDescription        string   `json:"asset_description"`
	SerialNo                *string  `json:"serial_no,omitempty"`
	Location                *string  `json:"location,omitempty"`
	ExcelUser               *string  `json:"excel_user,omitempty"`
	Manufacturer            *string  `json:"manufacturer,omitempty"`
	ValueCNY                *float64 `json:"value_cny,omitempty"`
	CommissioningTime       *string  `json:"commissioning_time,omitempty"`
	MetrologyValidityPeriod *string  `json:"metrology_validity_period,omitempty"`
	MetrologyRequirement    *string  `json:"metrology_requirement,omitempty"`
	MetrologyCost           *float64 `json:"metrology_cost,omitempty"`
	Remarks                 *string  `json:"remarks,omitempty"`
	ImageURL                *string  `json:"image_url,omitempty"`
	Status                  string   `json:"status"`
}

const StatusAvailable = "available"

// ISO8601 (UTC, ミリ秒) で日付を出力する
const isoLayout = "2006-01-02T15:04:05.000Z"

type setter func(f *Fields, raw string, c coercer)

// テンプレートの見出し → 項目。見出しは前後の空白を除いて照合する。
var headerColumns = map[string]setter{
	"Is Fixed Assets":           boolField(func(f *Fields) **bool { return &f.IsFixedAssets }),
	"Category":                  strField(func(f *Fields) **string { return &f.Category }),
	"Asset description":         func(f *Fields, raw string, _ coercer) { f.AssetDescription = strings.TrimSpace(raw) },
	"Serial No":                 strField(func(f *Fields) **string { return &f.SerialNo }),
	"location":                  strField(func(f *Fields) **string { return &f.Location }),
	"user":                      strField(func(f *Fields) **string { return &f.ExcelUser }),
	"Manufacturer":              strField(func(f *Fields) **string { return &f.Manufacturer }),
	"Value (CNY)":               numField(func(f *Fields) **float64 { return &f.ValueCNY }),
	"Commissioning Time":        dateField(func(f *Fields) **string { return &f.CommissioningTime }),
	"Metrology Validity Period": dateField(func(f *Fields) **string { return &f.MetrologyValidityPeriod }),
	"Metrology Requirement":     strField(func(f *Fields) **string { return &f.MetrologyRequirement }),
	"Metrology Cost":            numField(func(f *Fields) **float64 { return &f.MetrologyCost }),
	"Remarks":                   strField(func(f *Fields) **string { return &f.Remarks }),
	"Image URL":                 strField(func(f *Fields) **string { return &f.ImageURL }),
}

func strField(ptr func(*Fields) **string) setter {
	return func(f *Fields, raw string, _ coercer) {
		if v, ok := coerceString(raw); ok {
			*ptr(f) = &v
		}
	}
}

func numField(ptr func(*Fields) **float64) setter {
	return func(f *Fields, raw string, _ coercer) {
		if v, ok := coerceNumber(raw); ok {
			*ptr(f) = &v
		}
	}
}

func boolField(ptr func(*Fields) **bool) setter {
	return func(f *Fields, raw string, _ coercer) {
		if v, ok := coerceBool(raw); ok {
			*ptr(f) = &v
		}
	}
}

func dateField(ptr func(*Fields) **string) setter {
	return func(f *Fields, raw string, c coercer) {
		if v, ok := c.date(raw); ok {
			*ptr(f) = &v
		}
	}
}

func coerceString(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != ""
}

func coerceNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func coerceBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1", "是", "固定资产":
		return true, true
	case "n", "no", "false", "0", "否", "非固定资产":
		return false, true
	}
	return false, false
}

// coercer はブック単位の解釈設定（1904年基準かどうか）を持つ。
type coercer struct {
	date1904 bool
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006.01.02",
	"2006.1.2",
	"2006年1月2日",
	"01/02/2006",
	"1/2/2006",
}

// date は Excel のシリアル値または日付文字列を ISO8601 に変換する。
func (c coercer) date(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if n, ok := coerceNumber(s); ok {
		if n <= 0 {
			return "", false
		}
		t, err := excelize.ExcelDateToTime(n, c.date1904)
		if err != nil {
			return "", false
		}
		return t.UTC().Format(isoLayout), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(isoLayout), true
		}
	}
	return "", false
}
