package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 统一业务代码，错误时与 HTTP 状态码一致
const (
	CodeSuccess = 100
)

// Response 统一 JSON 响应
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// JSON success helper
func Success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Code: CodeSuccess, Message: "success", Data: data})
}

// Error helper
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// parseID 路由参数 :id 必须是正整数
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "无效的 ID")
		return 0, false
	}
	return uint(id), true
}
