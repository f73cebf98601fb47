package reconcile

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"
)

// 1メンバーあたりの展開上限
const maxMemberBytes = 64 << 20

// AnchoredImage はドローイングに配置された画像1つ。Row/Col は0始まりのセル位置。
type AnchoredImage struct {
	Row      int
	Col      int
	Filename string
	Bytes    []byte
}

// archive は xlsx(zip) のメンバーを名前で引けるようにしたもの。
// パーツ名は大文字小文字を区別しない。
type archive struct {
	files map[string]*zip.File
}

func openArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	a := &archive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		a.files[partKey(f.Name)] = f
	}
	return a, nil
}

func partKey(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return strings.ToLower(strings.TrimPrefix(name, "/"))
}

func (a *archive) lookup(name string) (*zip.File, bool) {
	f, ok := a.files[partKey(name)]
	return f, ok
}

func (a *archive) read(name string) ([]byte, bool) {
	f, ok := a.lookup(name)
	if !ok {
		return nil, false
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxMemberBytes+1))
	if err != nil || len(b) > maxMemberBytes {
		return nil, false
	}
	return b, true
}

func (a *archive) decode(name string, v any) bool {
	b, ok := a.read(name)
	if !ok {
		return false
	}
	return xml.Unmarshal(b, v) == nil
}

// ---- OOXML parts ----

type xmlRelationships struct {
	Items []xmlRelationship `xml:"Relationship"`
}

type xmlRelationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type xmlWorkbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type xmlWorksheet struct {
	Drawing *struct {
		RID string `xml:"id,attr"`
	} `xml:"drawing"`
}

type xmlDrawing struct {
	Anchors []xmlAnchor `xml:",any"`
}

type xmlAnchor struct {
	XMLName xml.Name
	From    *struct {
		Col int `xml:"col"`
		Row int `xml:"row"`
	} `xml:"from"`
	Pic *struct {
		BlipFill struct {
			Blip struct {
				Embed string `xml:"embed,attr"`
			} `xml:"blip"`
		} `xml:"blipFill"`
	} `xml:"pic"`
}

// relsPath は <dir>/_rels/<file>.rels を返す。
func relsPath(part string) string {
	return path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
}

// rels はパーツのリレーションを Id で引ける形で返す。無ければ空。
func (a *archive) rels(part string) map[string]xmlRelationship {
	var r xmlRelationships
	out := map[string]xmlRelationship{}
	if !a.decode(relsPath(part), &r) {
		return out
	}
	for _, it := range r.Items {
		if strings.EqualFold(it.TargetMode, "External") {
			continue
		}
		out[it.ID] = it
	}
	return out
}

// resolveTarget はリレーションの Target を base ディレクトリ基準で解決する。
// "/xl/..." のような絶対指定はパッケージルートから。
func resolveTarget(base, target string) string {
	target = strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Join(base, target)
}

// workbookPath はパッケージのルートリレーションから本体ブックのパスを得る。
func (a *archive) workbookPath() string {
	var r xmlRelationships
	if a.decode("_rels/.rels", &r) {
		for _, it := range r.Items {
			if strings.HasSuffix(it.Type, "/officeDocument") {
				return resolveTarget("", it.Target)
			}
		}
	}
	return "xl/workbook.xml"
}

func (a *archive) sheetPath(wbPath, sheetName string) (string, bool) {
	var wb xmlWorkbook
	if !a.decode(wbPath, &wb) {
		return "", false
	}
	for _, s := range wb.Sheets {
		if s.Name != sheetName {
			continue
		}
		rel, ok := a.rels(wbPath)[s.RID]
		if !ok {
			return "", false
		}
		return resolveTarget(path.Dir(wbPath), rel.Target), true
	}
	return "", false
}

// images はシートに配置された画像を文書順に返す。
// 途中のパーツが欠けていればその枝だけ諦める。
func (a *archive) images(wbPath, sheetName string) []AnchoredImage {
	sheet, ok := a.sheetPath(wbPath, sheetName)
	if !ok {
		return nil
	}
	var ws xmlWorksheet
	if !a.decode(sheet, &ws) || ws.Drawing == nil || ws.Drawing.RID == "" {
		return nil
	}
	rel, ok := a.rels(sheet)[ws.Drawing.RID]
	if !ok {
		return nil
	}
	drawing := resolveTarget(path.Dir(sheet), rel.Target)

	var dr xmlDrawing
	if !a.decode(drawing, &dr) {
		return nil
	}
	drels := a.rels(drawing)

	var out []AnchoredImage
	for _, anc := range dr.Anchors {
		switch anc.XMLName.Local {
		case "twoCellAnchor", "oneCellAnchor":
		default:
			continue
		}
		if anc.From == nil || anc.Pic == nil || anc.Pic.BlipFill.Blip.Embed == "" {
			continue
		}
		mr, ok := drels[anc.Pic.BlipFill.Blip.Embed]
		if !ok {
			continue
		}
		media := resolveTarget(path.Dir(drawing), mr.Target)
		f, ok := a.lookup(media)
		if !ok {
			continue
		}
		b, ok := a.read(media)
		if !ok {
			continue
		}
		out = append(out, AnchoredImage{
			Row:      anc.From.Row,
			Col:      anc.From.Col,
			Filename: path.Base(f.Name),
			Bytes:    b,
		})
	}
	return out
}
