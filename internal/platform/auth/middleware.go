package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

// AccountLookup はリクエスト毎に現在のアカウント状態を引く。
// 見つからなければ (nil, nil)。
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*Account, error)
}

var (
	errNoHeader   = errors.New("missing Authorization header")
	errBadScheme  = errors.New("invalid Authorization header")
	errEmptyToken = errors.New("empty token")
	errBadToken   = errors.New("invalid token")
	errBadSubject = errors.New("invalid sub")
)

// RequireAuth は Bearer トークンを検証し、sub のアカウントを毎回読み直す。
// 権限と停止状態はトークンの claim ではなく保存済みのアカウントに従う。
func RequireAuth(secret []byte, accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, err.Error()))
			return
		}
		sub, err := subjectOf(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, err.Error()))
			return
		}

		acct, err := accounts.GetByID(c.Request.Context(), sub)
		switch {
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(CodeInternal, "account lookup failed"))
			return
		case acct == nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "account not found"))
			return
		case acct.IsDisabled:
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(CodePermissionDenied, "account disabled"))
			return
		}

		c.Set(CtxUserIDKey, acct.ID)
		c.Set(CtxRoleKey, acct.Role)
		c.Next()
	}
}

func bearerToken(h string) (string, error) {
	if h == "" {
		return "", errNoHeader
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errEmptyToken
	}
	return tok, nil
}

// subjectOf は HS256 固定で署名と exp を検証し sub を返す。
func subjectOf(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errBadToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errBadSubject
	}
	return sub, nil
}

// RequireRole は RequireAuth の後段に置く。
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		if r != "" {
			allowed[r] = true
		}
	}
	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if !allowed[role] {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(CodePermissionDenied, "forbidden"))
			return
		}
		c.Next()
	}
}
