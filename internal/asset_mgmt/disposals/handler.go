package disposals

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"KURA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

// admin 専用
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/units/:unit_id/disposals", h.CreateDisposal)
	r.GET("/disposals", h.ListDisposals)
	r.GET("/disposals/:disposal_ulid", h.GetDisposal)
}

func (h *Handler) CreateDisposal(c *gin.Context) {
	var req CreateDisposalRequest
	// body は省略可
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "invalid json"))
			return
		}
	}
	res, err := h.svc.Scrap(c.Request.Context(), c.Param("unit_id"), req, c.GetString(auth.CtxUserIDKey))
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.Header("Location", "/api/v2/disposals/"+res.DisposalULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetDisposal(c *gin.Context) {
	res, err := h.svc.GetDisposalByULID(c.Request.Context(), c.Param("disposal_ulid"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListDisposals(c *gin.Context) {
	var f DisposalFilter
	if v := c.Query("unit_id"); v != "" {
		f.UnitID = &v
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}
	p := Page{
		Limit:  atoiDef(c.Query("limit"), 50),
		Offset: atoiDef(c.Query("offset"), 0),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}.Clamp()
	res, err := h.svc.ListDisposals(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), apiErrFrom(err))
		return
	}
	c.JSON(http.StatusOK, res)
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
