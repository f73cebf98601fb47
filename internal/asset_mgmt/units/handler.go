package units

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"KURA-backend/internal/platform/auth"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct{ svc *Service }

// RegisterRoutes は一般利用者向けの参照系。
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/units", h.ListUnits)
	r.GET("/units/:unit_id", h.GetUnit)
	r.GET("/groups", h.ListGroups)
}

// RegisterAdminRoutes は admin 専用の更新系。
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/units", h.CreateUnit)
	r.DELETE("/units/:unit_id", h.DeleteUnit)
	r.PUT("/groups/rename", h.RenameGroup)
	r.GET("/export/units", h.Export)
}

func (h *Handler) CreateUnit(c *gin.Context) {
	var req CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/api/v2/units/"+res.UnitID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetUnit(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("unit_id"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUnits(c *gin.Context) {
	var f UnitFilter
	if v := c.Query("group_key"); v != "" {
		f.GroupKey = &v
	}
	if v := c.Query("status"); v != "" {
		f.Status = &v
	}
	if v := c.Query("scrapped"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Scrapped = &b
		}
	}
	if v := c.Query("holder"); v != "" {
		f.Holder = &v
	}
	if v := c.Query("import_id"); v != "" {
		f.ImportID = &v
	}
	if v := c.Query("q"); v != "" {
		f.Q = &v
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}.Clamp()
	res, err := h.svc.List(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteUnit(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("unit_id")); err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListGroups(c *gin.Context) {
	var q *string
	if v := c.Query("q"); v != "" {
		q = &v
	}
	items, err := h.svc.Groups(c.Request.Context(), c.GetString(auth.CtxUserIDKey), q)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

func (h *Handler) RenameGroup(c *gin.Context) {
	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "group_key and new_description are required"))
		return
	}
	res, err := h.svc.RenameGroup(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Export(c *gin.Context) {
	data, err := h.svc.Export(c.Request.Context())
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename(h.svc.clock.Now())+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// ===== helpers =====

func atoiDef(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}

type errDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errDTO {
	var e errDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errDTO {
	var api *APIError
	if errors.As(err, &api) {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(CodeInternal, "internal error")
}
