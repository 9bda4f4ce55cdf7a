// Package store 内容表的存储原语：按 id 投影读取、批量条件更新、批量条件删除、评论子树遍历
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zhulink-cascade/internal/models"
)

var ErrNotFound = errors.New("record not found")

// Filter 批量操作的匹配条件
// nil 切片表示不限制；非 nil 的空切片不匹配任何行
type Filter struct {
	IDs       []uint
	ForumIDs  []uint // posts.forum_id
	PostIDs   []uint // comments.post_id
	ParentIDs []uint // comments.parent_id
	TargetIDs []uint // votes.target_id
	IsPost    *bool  // votes.is_post

	OnlyLive      bool
	OnlyDeleted   bool
	DeletedBefore *time.Time // deleted_at < DeletedBefore
}

// Store 级联删除与清理所需的全部存储能力
// 单行或单表批量写入，不提供跨表事务
type Store interface {
	// Ref 按 id 读取最小投影，不存在时返回 ErrNotFound
	Ref(ctx context.Context, kind models.Kind, id uint) (models.Ref, error)
	// OwnerOf 只读取所有者字段
	OwnerOf(ctx context.Context, kind models.Kind, id uint) (uint, error)
	// IDs 按 id 升序分页，返回 id > afterID 的最多 limit 个
	IDs(ctx context.Context, kind models.Kind, f Filter, afterID uint, limit int) ([]uint, error)
	Count(ctx context.Context, kind models.Kind, f Filter) (int64, error)
	// CountBy 按 column 分组计数，用于重建计数器
	CountBy(ctx context.Context, kind models.Kind, f Filter, column string) (map[uint]int64, error)

	// SoftDelete 对匹配且未删除的行设置 is_deleted/deleted_at，返回实际修改的行数
	SoftDelete(ctx context.Context, kind models.Kind, f Filter, at time.Time) (int64, error)
	// HardDelete 物理删除，仅供清理任务使用
	HardDelete(ctx context.Context, kind models.Kind, f Filter) (int64, error)

	// CommentSubtreeIDs 返回 rootID 及其全部子孙评论 id，深度不超过 maxDepth
	// 已删除的中间节点同样会被遍历
	CommentSubtreeIDs(ctx context.Context, rootID uint, maxDepth int) ([]uint, error)

	// AdjustCounter 原子地 column = column + delta
	AdjustCounter(ctx context.Context, kind models.Kind, id uint, column string, delta int) error
	SetCounter(ctx context.Context, kind models.Kind, id uint, column string, value int) error
}

// Counter columns
const (
	ColPostCount       = "post_count"
	ColFollowerCount   = "follower_count"
	ColCommentCount    = "comment_count"
	ColNumberOfReplies = "number_of_replies"
)

var counterColumns = map[models.Kind]map[string]bool{
	models.KindForum:   {ColPostCount: true, ColFollowerCount: true},
	models.KindPost:    {ColCommentCount: true},
	models.KindComment: {ColNumberOfReplies: true},
}

// groupColumns CountBy 可分组的列
var groupColumns = map[models.Kind]map[string]bool{
	models.KindPost:    {"forum_id": true},
	models.KindComment: {"post_id": true, "parent_id": true},
	models.KindVote:    {"target_id": true},
}

// CheckCounterColumn 列名会拼进 SQL，必须在白名单内
func CheckCounterColumn(kind models.Kind, column string) error {
	if !counterColumns[kind][column] {
		return fmt.Errorf("column %q is not a counter of %s", column, kind)
	}
	return nil
}

func CheckGroupColumn(kind models.Kind, column string) error {
	if !groupColumns[kind][column] {
		return fmt.Errorf("column %q cannot group %s", column, kind)
	}
	return nil
}

// Bool 便于构造 Filter.IsPost
func Bool(b bool) *bool {
	return &b
}
