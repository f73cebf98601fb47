package imports

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"KURA-backend/internal/asset_mgmt/imports/reconcile"
	"KURA-backend/internal/asset_mgmt/units"
)

// 画像URLの同時取得数
const fetchConcurrency = 4

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ---- 依存 ----

type UnitCreator interface {
	Create(ctx context.Context, in units.CreateUnitRequest) (units.UnitResponse, error)
}

type BlobStore interface {
	Put(ctx context.Context, data []byte, filename string) (string, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type BatchStore interface {
	InsertBatch(ctx context.Context, b *ImportBatch) error
	GetBatch(ctx context.Context, importID string) (*ImportBatch, error)
	ListBatches(ctx context.Context, p Page) ([]ImportBatch, int64, error)
}

type Service struct {
	units   UnitCreator
	blobs   BlobStore
	fetcher ImageFetcher
	batches BatchStore
	clock   Clock
	id      IDGen
	log     *zap.Logger
	tracer  trace.Tracer
}

func NewService(conn *sql.DB, u UnitCreator, blobs BlobStore, fetcher ImageFetcher, log *zap.Logger) *Service {
	return newService(NewStore(conn), u, blobs, fetcher, log)
}

func newService(b BatchStore, u UnitCreator, blobs BlobStore, fetcher ImageFetcher, log *zap.Logger) *Service {
	return &Service{
		units:   u,
		blobs:   blobs,
		fetcher: fetcher,
		batches: b,
		clock:   realClock{},
		id:      ulidGen{},
		log:     log,
		tracer:  otel.Tracer("kura/imports"),
	}
}

// Import は台帳ファイルを読み、1行ずつ機器を登録する。
// 行ごとの失敗は警告に積んで続行し、登録済みの行は戻さない。
func (s *Service) Import(ctx context.Context, req ImportRequest) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "imports.Import", trace.WithAttributes(
		attribute.String("import.filename", req.Filename),
		attribute.Int("import.bytes", len(req.Data)),
	))
	defer span.End()

	out, err := s.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("import.created", len(out.CreatedIDs)),
		attribute.Int("import.warnings", len(out.Warnings)),
	)
	return out, nil
}

func (s *Service) run(ctx context.Context, req ImportRequest) (Result, error) {
	if len(req.Data) == 0 {
		return Result{}, ErrInvalid("source_file is empty")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		return Result{}, ErrInvalid("created_by is required")
	}

	parsed, err := parse(req)
	if err != nil {
		var mal *reconcile.MalformedArchiveError
		if errors.As(err, &mal) {
			s.log.Warn("malformed import file", zap.String("filename", req.Filename), zap.Error(err))
			return Result{}, ErrMalformed(mal.Reason)
		}
		return Result{}, err
	}
	if len(parsed.Rows) == 0 {
		return Result{}, ErrInvalid("no valid rows parsed")
	}

	out := Result{
		OK:                  true,
		SheetName:           parsed.SheetName,
		ParsedRows:          parsed.ParsedRows,
		ValidUnits:          len(parsed.Rows),
		EmbeddedImagesFound: parsed.ImagesFound,
		CreatedIDs:          []string{},
		Warnings:            []Warning{},
	}

	// 元ファイルとバッチ記録（失敗しても行の登録は続ける）
	out.ImportID = s.recordBatch(ctx, req, &out)

	fetched := s.prefetchImages(ctx, parsed)

	for i, row := range parsed.Rows {
		if ctx.Err() != nil {
			out.Warnings = append(out.Warnings, Warning{
				Code:    CodeCancelled,
				Message: fmt.Sprintf("import cancelled, %d rows not submitted", len(parsed.Rows)-i),
			})
			break
		}
		sheetRow := row.SourceRowIndex + 2

		in := toCreateRequest(row.Fields)
		in.ImportRef = out.ImportID

		if img, ok := parsed.ImagesByRowIndex[row.SourceRowIndex]; ok {
			out.EmbeddedImagesMapped++
			key, err := s.blobs.Put(ctx, img.Bytes, img.Filename)
			if err != nil {
				s.log.Warn("embedded image not stored", zap.Int("row", sheetRow), zap.Error(err))
				out.Warnings = append(out.Warnings, Warning{Code: CodeImageStoreFailed, Row: sheetRow, Message: "embedded image could not be stored"})
			} else {
				in.ImageRef = &key
			}
		} else if f, ok := fetched[i]; ok {
			if f.err != nil {
				out.Warnings = append(out.Warnings, Warning{Code: f.code, Row: sheetRow, Message: f.err.Error()})
			} else {
				in.ImageRef = &f.key
			}
		}

		u, err := s.units.Create(ctx, in)
		if err != nil {
			s.log.Warn("row submission failed", zap.Int("row", sheetRow), zap.String("group_key", row.GroupKey), zap.Error(err))
			out.Warnings = append(out.Warnings, Warning{Code: CodeRowSubmissionFailed, Row: sheetRow, Message: messageOf(err)})
			continue
		}
		out.CreatedIDs = append(out.CreatedIDs, u.UnitID)
	}

	s.log.Info("import finished",
		zap.String("filename", req.Filename),
		zap.Stringp("import_id", out.ImportID),
		zap.Int("parsed_rows", out.ParsedRows),
		zap.Int("created", len(out.CreatedIDs)),
		zap.Int("warnings", len(out.Warnings)),
	)
	return out, nil
}

func parse(req ImportRequest) (*reconcile.Result, error) {
	if strings.EqualFold(path.Ext(req.Filename), ".csv") {
		return reconcile.ReconcileCSV(req.Data)
	}
	return reconcile.Reconcile(req.Data, reconcile.Options{SheetName: req.SheetName})
}

func (s *Service) recordBatch(ctx context.Context, req ImportRequest, out *Result) *string {
	ref, err := s.blobs.Put(ctx, req.Data, req.Filename)
	if err != nil {
		s.log.Warn("source file not stored", zap.String("filename", req.Filename), zap.Error(err))
		out.Warnings = append(out.Warnings, Warning{Code: CodeImportRecordFailed, Message: "source file could not be stored"})
		return nil
	}

	now := s.clock.Now()
	b := &ImportBatch{
		ImportID:       s.id.NewULID(now),
		SourceFileRef:  ref,
		SourceFilename: path.Base(req.Filename),
		CreatedBy:      req.CreatedBy,
		Notes:          req.Notes,
		CreatedAt:      now,
	}
	if err := s.batches.InsertBatch(ctx, b); err != nil {
		s.log.Warn("import batch not recorded", zap.Error(err))
		out.Warnings = append(out.Warnings, Warning{Code: CodeImportRecordFailed, Message: "import batch could not be recorded"})
		return nil
	}
	return &b.ImportID
}

type fetchResult struct {
	key  string
	code Code
	err  error
}

// prefetchImages は埋め込み画像の無い行の Image URL を並行して取得・保存する。
// 結果は Rows の添字で引く。
func (s *Service) prefetchImages(ctx context.Context, parsed *reconcile.Result) map[int]fetchResult {
	if s.fetcher == nil {
		return map[int]fetchResult{}
	}
	results := make([]*fetchResult, len(parsed.Rows))

	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for i, row := range parsed.Rows {
		if _, ok := parsed.ImagesByRowIndex[row.SourceRowIndex]; ok {
			continue
		}
		if row.Fields.ImageURL == nil {
			continue
		}
		url := *row.Fields.ImageURL
		g.Go(func() error {
			data, name, err := s.fetcher.Fetch(ctx, url)
			if err != nil {
				results[i] = &fetchResult{code: CodeImageFetchFailed, err: err}
				return nil
			}
			key, err := s.blobs.Put(ctx, data, name)
			if err != nil {
				s.log.Warn("fetched image not stored", zap.Int("row", row.SourceRowIndex+2), zap.Error(err))
				results[i] = &fetchResult{code: CodeImageStoreFailed, err: errors.New("fetched image could not be stored")}
				return nil
			}
			results[i] = &fetchResult{key: key}
			return nil
		})
	}
	_ = g.Wait()

	out := map[int]fetchResult{}
	for i, r := range results {
		if r != nil {
			out[i] = *r
		}
	}
	return out
}

const isoLayout = "2006-01-02T15:04:05.000Z"

func toCreateRequest(f reconcile.Fields) units.CreateUnitRequest {
	return units.CreateUnitRequest{
		AssetDescription:        f.AssetDescription,
		IsFixedAssets:           f.IsFixedAssets,
		Category:                f.Category,
		SerialNo:                f.SerialNo,
		Location:                f.Location,
		ExcelUser:               f.ExcelUser,
		Manufacturer:            f.Manufacturer,
		ValueCNY:                f.ValueCNY,
		CommissioningTime:       isoTime(f.CommissioningTime),
		MetrologyValidityPeriod: isoTime(f.MetrologyValidityPeriod),
		MetrologyRequirement:    f.MetrologyRequirement,
		MetrologyCost:           f.MetrologyCost,
		Remarks:                 f.Remarks,
	}
}

func isoTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(isoLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func (s *Service) GetBatch(ctx context.Context, importID string) (ImportBatch, error) {
	b, err := s.batches.GetBatch(ctx, importID)
	if err != nil {
		return ImportBatch{}, err
	}
	if b == nil {
		return ImportBatch{}, ErrNotFound("import not found")
	}
	return *b, nil
}

func (s *Service) ListBatches(ctx context.Context, p Page) (ListResult, error) {
	p = p.Clamp()
	items, total, err := s.batches.ListBatches(ctx, p)
	if err != nil {
		return ListResult{}, err
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	}
	return ListResult{Items: items, Total: total, NextOffset: next}, nil
}
