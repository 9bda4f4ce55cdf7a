package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/observability"
	"zhulink-cascade/internal/store"

	"github.com/google/uuid"
)

// CascadeEngine 根节点同步软删除，子孙节点交给 worker 异步传播
// 调用方需要先通过 Authorizer 检查权限，这里不再重复检查
type CascadeEngine struct {
	store    store.Store
	pool     *WorkerPool
	deleter  *softDeleter
	counters CounterPolicy
	maxDepth int
}

func NewCascadeEngine(s store.Store, pool *WorkerPool, conf config.CascadeConfig, metrics *observability.Metrics) *CascadeEngine {
	maxDepth := conf.MaxDepth
	if maxDepth <= 0 {
		maxDepth = models.MaxCommentDepth
	}
	return &CascadeEngine{
		store:    s,
		pool:     pool,
		deleter:  newSoftDeleter(s, conf.BatchSize, metrics),
		counters: PolicyFromConfig(conf.Counters),
		maxDepth: maxDepth,
	}
}

// DeleteVote 投票是叶子节点，没有后续任务
func (e *CascadeEngine) DeleteVote(ctx context.Context, id uint) error {
	_, _, err := e.deleteRoot(ctx, models.KindVote, id)
	return err
}

func (e *CascadeEngine) DeleteForum(ctx context.Context, id uint) error {
	_, _, err := e.deleteRoot(ctx, models.KindForum, id)
	if err != nil {
		return err
	}
	e.dispatch(models.KindForum, id, func(ctx context.Context) error {
		return e.cascadeForum(ctx, id)
	})
	return nil
}

func (e *CascadeEngine) DeletePost(ctx context.Context, id uint) error {
	ref, modified, err := e.deleteRoot(ctx, models.KindPost, id)
	if err != nil {
		return err
	}
	e.dispatch(models.KindPost, id, func(ctx context.Context) error {
		if err := e.cascadePost(ctx, id); err != nil {
			return err
		}
		if modified {
			return atStage("forum_counter", e.postRemoved(ctx, ref))
		}
		return nil
	})
	return nil
}

// DeleteComment 异步删除整棵回复子树及其投票，然后按实际删除数量调整计数
func (e *CascadeEngine) DeleteComment(ctx context.Context, id uint) error {
	ref, modified, err := e.deleteRoot(ctx, models.KindComment, id)
	if err != nil {
		return err
	}
	e.dispatch(models.KindComment, id, func(ctx context.Context) error {
		n, err := e.cascadeComment(ctx, id)
		if err != nil {
			return err
		}
		if modified {
			n++
		}
		return atStage("counters", e.commentsRemoved(ctx, ref, n))
	})
	return nil
}

// deleteRoot 同步读取投影并软删除根节点，失败直接返回给调用方
func (e *CascadeEngine) deleteRoot(ctx context.Context, kind models.Kind, id uint) (models.Ref, bool, error) {
	ref, err := e.store.Ref(ctx, kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ref, false, fmt.Errorf("%s %d: %w", kind, id, err)
		}
		return ref, false, fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	modified, err := e.deleter.one(ctx, kind, id)
	if err != nil {
		return ref, false, fmt.Errorf("soft delete %s %d: %w", kind, id, err)
	}
	if !modified {
		slog.Debug("根节点已被删除", "kind", kind, "id", id)
	}
	return ref, modified, nil
}

// dispatch 投递失败只记录，不影响已经提交的根节点删除
func (e *CascadeEngine) dispatch(kind models.Kind, id uint, run func(ctx context.Context) error) {
	task := Task{
		ID:       uuid.New().String(),
		Kind:     string(kind),
		EntityID: id,
		Run:      run,
	}
	if err := e.pool.Submit(task); err != nil {
		slog.Error("级联任务投递失败，等待孤儿清扫处理",
			"task_id", task.ID, "kind", kind, "entity_id", id, "error", err)
	}
}

// cascadeComment 返回子孙评论中实际被标记的数量，根节点已经在同步阶段处理
func (e *CascadeEngine) cascadeComment(ctx context.Context, rootID uint) (int64, error) {
	ids, err := e.store.CommentSubtreeIDs(ctx, rootID, e.maxDepth)
	if err != nil {
		return 0, atStage("collect_subtree", err)
	}
	n, err := e.deleter.batch(ctx, models.KindComment, ids, nil)
	if err != nil {
		return n, atStage("delete_comments", err)
	}
	if _, err := e.deleter.batch(ctx, models.KindVote, ids, votesOn(false)); err != nil {
		return n, atStage("delete_comment_votes", err)
	}
	return n, nil
}

// cascadePost 删除帖子下所有评论，以及帖子和这些评论上的投票
func (e *CascadeEngine) cascadePost(ctx context.Context, postID uint) error {
	return e.cascadePosts(ctx, []uint{postID})
}

func (e *CascadeEngine) cascadeForum(ctx context.Context, forumID uint) error {
	postIDs, err := e.deleter.collect(ctx, models.KindPost, store.Filter{ForumIDs: []uint{forumID}})
	if err != nil {
		return atStage("collect_posts", err)
	}
	if _, err := e.deleter.batch(ctx, models.KindPost, postIDs, nil); err != nil {
		return atStage("delete_posts", err)
	}
	return e.cascadePosts(ctx, postIDs)
}

func (e *CascadeEngine) cascadePosts(ctx context.Context, postIDs []uint) error {
	if len(postIDs) == 0 {
		return nil
	}
	commentIDs, err := e.deleter.collectFor(ctx, models.KindComment, postIDs, func(chunk []uint) store.Filter {
		return store.Filter{PostIDs: chunk}
	})
	if err != nil {
		return atStage("collect_comments", err)
	}
	if _, err := e.deleter.batch(ctx, models.KindComment, commentIDs, nil); err != nil {
		return atStage("delete_comments", err)
	}
	if _, err := e.deleter.batch(ctx, models.KindVote, postIDs, votesOn(true)); err != nil {
		return atStage("delete_post_votes", err)
	}
	if _, err := e.deleter.batch(ctx, models.KindVote, commentIDs, votesOn(false)); err != nil {
		return atStage("delete_comment_votes", err)
	}
	return nil
}
