package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"zhulink-cascade/internal/middleware"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/services"
	"zhulink-cascade/internal/store"

	"github.com/gin-gonic/gin"
)

// ContentHandler 删除请求：先鉴权，再交给级联引擎
type ContentHandler struct {
	auth     *services.Authorizer
	engine   *services.CascadeEngine
	resolver *services.OwnershipResolver
}

func NewContentHandler(auth *services.Authorizer, engine *services.CascadeEngine, resolver *services.OwnershipResolver) *ContentHandler {
	return &ContentHandler{auth: auth, engine: engine, resolver: resolver}
}

func (h *ContentHandler) DeleteForum(c *gin.Context) {
	h.delete(c, models.KindForum, h.engine.DeleteForum)
}

func (h *ContentHandler) DeletePost(c *gin.Context) {
	h.delete(c, models.KindPost, h.engine.DeletePost)
}

func (h *ContentHandler) DeleteComment(c *gin.Context) {
	h.delete(c, models.KindComment, h.engine.DeleteComment)
}

func (h *ContentHandler) DeleteVote(c *gin.Context) {
	h.delete(c, models.KindVote, h.engine.DeleteVote)
}

func (h *ContentHandler) delete(c *gin.Context, kind models.Kind, del func(ctx context.Context, id uint) error) {
	userID := c.MustGet(middleware.UserIDKey).(uint)
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	verdict, err := h.auth.Check(ctx, userID, kind, id)
	if err != nil {
		slog.Error("权限检查失败", "kind", kind, "id", id, "user_id", userID, "error", err)
		Error(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	switch verdict.Decision {
	case services.NotFound, services.AlreadyDeleted:
		Error(c, http.StatusNotFound, "内容不存在或已删除")
		return
	case services.Forbidden:
		Error(c, http.StatusForbidden, "无权删除")
		return
	}

	// 根节点同步删除，子节点在后台处理
	if err := del(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(c, http.StatusNotFound, "内容不存在或已删除")
			return
		}
		slog.Error("删除失败", "kind", kind, "id", id, "user_id", userID, "error", err)
		Error(c, http.StatusInternalServerError, "删除失败")
		return
	}

	slog.Info("内容已删除", "kind", kind, "id", id, "user_id", userID, "grant", verdict.Grant)
	Success(c, http.StatusAccepted, gin.H{
		"kind":  kind,
		"id":    id,
		"grant": verdict.Grant,
	})
}

// Owner GET /owners/:kind/:id
func (h *ContentHandler) Owner(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		Error(c, http.StatusBadRequest, "未知的内容类型")
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	owner, err := h.resolver.OwnerOf(c.Request.Context(), kind, id)
	if errors.Is(err, store.ErrNotFound) {
		Error(c, http.StatusNotFound, "内容不存在")
		return
	}
	if err != nil {
		slog.Error("查询所有者失败", "kind", kind, "id", id, "error", err)
		Error(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	Success(c, http.StatusOK, gin.H{"kind": kind, "id": id, "owner_id": owner})
}
