package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func newGuardedRouter(accounts AccountLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", RequireAuth(testSecret, accounts))
	authed.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey)+"/"+c.GetString(CtxRoleKey))
	})
	authed.GET("/admin", RequireRole(RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func seededAccounts() *memAccounts {
	m := newMemAccounts()
	m.byID["U1"] = Account{ID: "U1", Username: "u1", Role: RoleUser}
	m.byID["A1"] = Account{ID: "A1", Username: "a1", Role: RoleAdmin}
	return m
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := newGuardedRouter(seededAccounts())
	exp := time.Now().Add(time.Hour).Unix()

	ok := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U1", "role": RoleUser, "exp": exp})
	w := get(r, "/whoami", ok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "U1/user", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "").Code)

	expired := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U1", "exp": time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", expired).Code)

	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "U1", "exp": exp})
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", wrongKey).Code)

	noSub := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"exp": exp})
	w = get(r, "/whoami", noSub)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), string(CodeUnauthenticated))

	hs512 := sign(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "U1", "exp": exp})
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", hs512).Code)

	// 削除済みアカウントのトークン
	gone := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "X9", "role": RoleAdmin, "exp": exp})
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", gone).Code)
}

func TestRequireAuth_RoleFromStoredAccount(t *testing.T) {
	r := newGuardedRouter(seededAccounts())
	exp := time.Now().Add(time.Hour).Unix()

	// claim が admin でも保存済みの権限が user なら user 扱い
	forged := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U1", "role": RoleAdmin, "exp": exp})
	assert.Equal(t, "U1/user", get(r, "/whoami", forged).Body.String())
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", forged).Code)
}

func TestRequireAuth_DemotedAndDisabledAfterLogin(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService()
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "rootpassword"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root2", "rootpassword"))
	root, _ := m.GetByUsername(ctx, "root")
	root2, _ := m.GetByUsername(ctx, "root2")

	token, err := svc.Login(ctx, "root2", "rootpassword")
	require.NoError(t, err)

	r := newGuardedRouter(m)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", token).Code)

	_, err = svc.ChangeRole(ctx, RoleAdmin, root.ID, root2.ID, RoleUser)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", token).Code)
	assert.Equal(t, http.StatusOK, get(r, "/whoami", token).Code)

	_, err = svc.SetDisabled(ctx, root.ID, root2.ID, true)
	require.NoError(t, err)
	w := get(r, "/whoami", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "account disabled")
}

type failingLookup struct{}

func (failingLookup) GetByID(context.Context, string) (*Account, error) {
	return nil, errors.New("db down")
}

func TestRequireAuth_LookupError(t *testing.T) {
	r := newGuardedRouter(failingLookup{})
	tok := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U1", "exp": time.Now().Add(time.Hour).Unix()})
	assert.Equal(t, http.StatusInternalServerError, get(r, "/whoami", tok).Code)
}

func TestRequireRole(t *testing.T) {
	m := seededAccounts()
	m.byID["U2"] = Account{ID: "U2", Username: "u2"}
	r := newGuardedRouter(m)
	exp := time.Now().Add(time.Hour).Unix()

	user := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U1", "exp": exp})
	admin := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "A1", "exp": exp})
	noRole := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "U2", "exp": exp})

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", user).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", noRole).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", admin).Code)
}
