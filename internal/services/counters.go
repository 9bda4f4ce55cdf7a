package services

import (
	"context"
	"fmt"
	"log/slog"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
)

// CounterPolicy 级联删除时如何调整祖先节点的冗余计数
// 计数器只是缓存，调整失败可以用 CounterRebuilder 重建
type CounterPolicy struct {
	// DecrementForumPostCount 删除帖子时版块 post_count - 1，默认关闭
	DecrementForumPostCount bool
	// SkipCommentCounters 删除评论时不调整 comment_count/number_of_replies
	SkipCommentCounters bool
}

func PolicyFromConfig(c config.CountersConfig) CounterPolicy {
	return CounterPolicy{
		DecrementForumPostCount: c.DecrementForumPostCount,
		SkipCommentCounters:     c.SkipCommentCounters,
	}
}

// commentsRemoved 评论子树删除了 n 条后更新帖子和父评论
// 使用 col = col - n 原子更新，不加锁，重叠的级联可能多减
func (e *CascadeEngine) commentsRemoved(ctx context.Context, root models.Ref, n int64) error {
	if n == 0 || e.counters.SkipCommentCounters {
		return nil
	}
	if err := e.store.AdjustCounter(ctx, models.KindPost, root.PostID, store.ColCommentCount, -int(n)); err != nil {
		return fmt.Errorf("post %d comment_count: %w", root.PostID, err)
	}
	if root.ParentID != nil {
		if err := e.store.AdjustCounter(ctx, models.KindComment, *root.ParentID, store.ColNumberOfReplies, -int(n)); err != nil {
			return fmt.Errorf("comment %d number_of_replies: %w", *root.ParentID, err)
		}
	}
	return nil
}

func (e *CascadeEngine) postRemoved(ctx context.Context, post models.Ref) error {
	if !e.counters.DecrementForumPostCount {
		return nil
	}
	return e.store.AdjustCounter(ctx, models.KindForum, post.ForumID, store.ColPostCount, -1)
}

// RebuildResult 重建后写入的计数
type RebuildResult struct {
	Forums   int `json:"forums"`
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
}

// CounterRebuilder 从未删除的子节点重新计算冗余计数
type CounterRebuilder struct {
	store     store.Store
	batchSize int
}

func NewCounterRebuilder(s store.Store, batchSize int) *CounterRebuilder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CounterRebuilder{store: s, batchSize: batchSize}
}

// RebuildPost comment_count = 未删除评论数；每条评论 number_of_replies = 未删除的直接回复数
func (r *CounterRebuilder) RebuildPost(ctx context.Context, postID uint) (RebuildResult, error) {
	var res RebuildResult
	live, err := r.store.Count(ctx, models.KindComment, store.Filter{PostIDs: []uint{postID}, OnlyLive: true})
	if err != nil {
		return res, err
	}
	if err := r.store.SetCounter(ctx, models.KindPost, postID, store.ColCommentCount, int(live)); err != nil {
		return res, err
	}
	res.Posts++

	replies, err := r.store.CountBy(ctx, models.KindComment,
		store.Filter{PostIDs: []uint{postID}, OnlyLive: true}, "parent_id")
	if err != nil {
		return res, err
	}

	var cursor uint
	for {
		ids, err := r.store.IDs(ctx, models.KindComment, store.Filter{PostIDs: []uint{postID}}, cursor, r.batchSize)
		if err != nil {
			return res, err
		}
		for _, id := range ids {
			if err := r.store.SetCounter(ctx, models.KindComment, id, store.ColNumberOfReplies, int(replies[id])); err != nil {
				return res, err
			}
			res.Comments++
		}
		if len(ids) < r.batchSize {
			break
		}
		cursor = ids[len(ids)-1]
	}
	return res, nil
}

// RebuildForum post_count = 未删除帖子数，并重建版块下每个帖子
func (r *CounterRebuilder) RebuildForum(ctx context.Context, forumID uint) (RebuildResult, error) {
	var res RebuildResult
	live, err := r.store.Count(ctx, models.KindPost, store.Filter{ForumIDs: []uint{forumID}, OnlyLive: true})
	if err != nil {
		return res, err
	}
	if err := r.store.SetCounter(ctx, models.KindForum, forumID, store.ColPostCount, int(live)); err != nil {
		return res, err
	}
	res.Forums++

	var cursor uint
	for {
		ids, err := r.store.IDs(ctx, models.KindPost, store.Filter{ForumIDs: []uint{forumID}}, cursor, r.batchSize)
		if err != nil {
			return res, err
		}
		for _, id := range ids {
			sub, err := r.RebuildPost(ctx, id)
			if err != nil {
				return res, fmt.Errorf("post %d: %w", id, err)
			}
			res.Posts += sub.Posts
			res.Comments += sub.Comments
		}
		if len(ids) < r.batchSize {
			break
		}
		cursor = ids[len(ids)-1]
	}
	slog.Info("版块计数重建完成", "forum_id", forumID, "posts", res.Posts, "comments", res.Comments)
	return res, nil
}
