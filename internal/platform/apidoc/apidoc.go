package apidoc

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed openapi.yaml
var document []byte

const docPath = "/api/v2/openapi.yaml"

// Register は OpenAPI 定義と Swagger UI (/swagger/index.html) を公開する。
func Register(r gin.IRoutes) {
	r.GET(docPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", document)
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(docPath)))
}
