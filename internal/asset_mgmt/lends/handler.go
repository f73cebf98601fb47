package lends

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"KURA-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 貸出・返却（呼び出し元の利用者として）
	r.POST("/lend-records", h.CreateRecord)
	r.GET("/lend-records", h.ListRecords)

	// 未返却の保有数
	r.GET("/holdings", h.ListHoldings)
}

// ---------- handlers ----------

func (h *Handler) CreateRecord(c *gin.Context) {
	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, FailureOutcome(ErrInvalid("invalid json or action")))
		return
	}
	out, err := h.svc.Transition(c.Request.Context(), c.GetString(auth.CtxUserIDKey), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), FailureOutcome(err))
		return
	}
	c.Header("Location", "/lend-records/"+out.LendRecordID)
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListRecords(c *gin.Context) {
	f := RecordFilter{UserID: scopeUser(c)}
	if v := c.Query("group_key"); v != "" {
		f.GroupKey = &v
	}
	if v := Action(c.Query("action")); v.Valid() {
		f.Action = &v
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
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}.Clamp()
	res, err := h.svc.ListRecords(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListHoldings(c *gin.Context) {
	res, err := h.svc.Holdings(c.Request.Context(), scopeUser(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

// 一般利用者は自分の分だけ。admin は ?user_id= で絞り込み可能。
func scopeUser(c *gin.Context) *string {
	if c.GetString(auth.CtxRoleKey) == auth.RoleAdmin {
		if v := c.Query("user_id"); v != "" {
			return &v
		}
		return nil
	}
	uid := c.GetString(auth.CtxUserIDKey)
	return &uid
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

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	if api, ok := err.(*APIError); ok {
		return errorBody(api.Code, api.Message)
	}
	return errorBody(CodeInternal, "internal error")
}
