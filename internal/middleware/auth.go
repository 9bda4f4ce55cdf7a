package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// UserIDKey 当前登录用户 id，类型为 uint
const UserIDKey = "user_id"

// LoadUser retrieves user id from session and sets to context
func LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if id, ok := toUserID(session.Get("user_id")); ok {
			c.Set(UserIDKey, id)
		}
		c.Next()
	}
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(UserIDKey); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "请先登录",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}

// toUserID session 由登录服务写入，兼容常见的整数类型
func toUserID(v interface{}) (uint, bool) {
	switch id := v.(type) {
	case uint:
		return id, id > 0
	case uint64:
		return uint(id), id > 0
	case int:
		return uint(id), id > 0
	case int64:
		return uint(id), id > 0
	case float64:
		return uint(id), id > 0
	}
	return 0, false
}
