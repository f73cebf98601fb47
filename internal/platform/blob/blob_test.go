package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet_ContentAddressed(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	k1, err := s.Put(ctx, []byte("caliper"), "Photo.JPEG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(k1, ".jpg"))
	assert.True(t, ValidKey(k1))

	k2, err := s.Put(ctx, []byte("caliper"), "other.jpg")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := s.Put(ctx, []byte("caliper2"), "other.jpg")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	got, err := s.Get(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, []byte("caliper"), got)
}

func TestGet_RejectsBadKeys(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, k := range []string{"", "../etc/passwd", strings.Repeat("z", 64), strings.Repeat("a", 64) + ".p/g"} {
		_, err := s.Get(context.Background(), k)
		assert.ErrorIs(t, err, ErrNotFound, k)
	}
	_, err = s.Get(context.Background(), strings.Repeat("a", 64)+".png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKey_NoExtension(t *testing.T) {
	k, err := Key([]byte("x"), "README")
	require.NoError(t, err)
	assert.Len(t, k, 64)
}

func TestHandler_ServesBlob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	key, err := s.Put(context.Background(), []byte("GIF89a"), "a.gif")
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/"+key, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))
	assert.Equal(t, "GIF89a", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
