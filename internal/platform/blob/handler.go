package blob

import (
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r gin.IRoutes, s *Store) {
	r.GET("/files/:key", func(c *gin.Context) {
		key := c.Param("key")
		p, ok := s.Path(key)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "file not found"}})
			return
		}
		if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
			c.Header("Content-Type", ct)
		}
		// 内容アドレスなので不変
		c.Header("Cache-Control", "private, max-age=31536000, immutable")
		c.File(p)
	})
}
