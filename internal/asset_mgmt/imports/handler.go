package imports

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"KURA-backend/internal/platform/auth"
)

type Handler struct {
	svc       *Service
	maxUpload int64
}

// RegisterRoutes は admin 専用。maxUploadMB はアップロードの上限 (MB)。
func RegisterRoutes(r gin.IRoutes, svc *Service, maxUploadMB int) {
	h := &Handler{svc: svc, maxUpload: int64(maxUploadMB) << 20}

	r.POST("/imports", h.CreateImport)
	r.GET("/imports", h.ListImports)
	r.GET("/imports/:import_id", h.GetImport)
}

// multipart: source_file（必須）, notes, sheet
func (h *Handler) CreateImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+(1<<20))

	fh, err := c.FormFile("source_file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(CodeInvalidInput, "file too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidInput, "source_file is required"))
		return
	}
	if fh.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody(CodeInvalidInput, "file too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidInput, "unreadable source_file"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidInput, "unreadable source_file"))
		return
	}

	req := ImportRequest{
		Filename:  fh.Filename,
		Data:      data,
		CreatedBy: c.GetString(auth.CtxUserIDKey),
		SheetName: strings.TrimSpace(c.PostForm("sheet")),
	}
	if v := strings.TrimSpace(c.PostForm("notes")); v != "" {
		req.Notes = &v
	}

	res, err := h.svc.Import(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	if res.ImportID != nil {
		c.Header("Location", "/api/v2/imports/"+*res.ImportID)
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetImport(c *gin.Context) {
	res, err := h.svc.GetBatch(c.Request.Context(), c.Param("import_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListImports(c *gin.Context) {
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}.Clamp()
	res, err := h.svc.ListBatches(c.Request.Context(), p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
