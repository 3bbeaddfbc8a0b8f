package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterDocs serves the Swagger UI and doc.json under /docs. The docs
// package must be imported by the binary for doc.json to resolve.
func RegisterDocs(router gin.IRoutes) {
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
