package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/wenhao0221/contract-compare/api/handlers"
	"github.com/wenhao0221/contract-compare/api/middleware"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowedOrigins []string) {
	// 全局中间件
	r.Use(middleware.CORS(allowedOrigins))

	// API 版本组
	v1 := r.Group("/api/v1")

	// 健康检查
	v1.GET("/health", handlers.HealthCheck)

	// 文档路由组
	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.Upload)
		docs.POST("/batch", h.Document.UploadBatch)
		docs.GET("", h.Document.List)
		docs.GET("/:id", h.Document.Get)
		docs.GET("/:id/content", h.Document.StreamContent)
		docs.PATCH("/:id/name", h.Document.Rename)
		docs.PATCH("/:id/standard", h.Document.SetStandard)
		docs.DELETE("/:id", h.Document.Delete)
		docs.POST("/validate-comparison", h.Document.ValidateForComparison)
	}

	// 比对路由组
	comparisons := v1.Group("/comparisons")
	{
		comparisons.POST("", h.Comparison.Compare)
		comparisons.GET("", h.Comparison.List)
		comparisons.GET("/:id", h.Comparison.Get)
		comparisons.DELETE("/:id", h.Comparison.Delete)
	}

	// 任务路由组
	tasks := v1.Group("/tasks")
	{
		tasks.GET("", h.Task.List)
		tasks.GET("/pending", h.Task.ListPending)
		tasks.GET("/:id", h.Task.GetStatus)
		tasks.DELETE("/:id", h.Task.Cancel)
		tasks.POST("/drain", h.Task.TriggerDrain)
	}
}
