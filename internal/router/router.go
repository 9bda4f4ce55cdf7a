package router

import (
	"net/http"

	"zhulink-cascade/internal/handlers"
	"zhulink-cascade/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 需要在调用前注册 sessions 中间件
func RegisterRoutes(r *gin.Engine, contentHandler *handlers.ContentHandler) {
	r.Use(middleware.LoadUser())

	// 公共路由 (Public Routes)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") }) // 健康检查
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))                         // Prometheus 指标
	r.GET("/owners/:kind/:id", contentHandler.Owner)                         // 查询所有者

	// 受保护路由 (Protected Routes)
	authorized := r.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.DELETE("/forums/:id", contentHandler.DeleteForum)     // 删除版块
		authorized.DELETE("/posts/:id", contentHandler.DeletePost)       // 删除帖子
		authorized.DELETE("/comments/:id", contentHandler.DeleteComment) // 删除评论
		authorized.DELETE("/votes/:id", contentHandler.DeleteVote)       // 删除投票
	}
}
