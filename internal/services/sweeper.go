package services

import (
	"context"
	"log/slog"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
)

// SweepResult 重新执行级联的对象数，Failed 为其中执行失败的数量
type SweepResult struct {
	Forums   int `json:"forums"`
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Failed   int `json:"failed"`
}

// Sweeper 找出已删除但仍有未删除子节点的对象，重新执行级联
// 用于处理被丢弃或中途失败的任务；不调整计数器，计数用 CounterRebuilder 修复
// 按版块、帖子、评论的顺序同步执行，上一层修复的结果不会在下一层重复出现
type Sweeper struct {
	engine *CascadeEngine
}

func NewSweeper(engine *CascadeEngine) *Sweeper {
	return &Sweeper{engine: engine}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	e := s.engine

	forums, err := s.orphaned(ctx, models.KindForum, func(chunk []uint) []orphanQuery {
		return []orphanQuery{{models.KindPost, store.Filter{ForumIDs: chunk, OnlyLive: true}, "forum_id"}}
	})
	if err != nil {
		return res, err
	}
	for _, id := range forums {
		s.repair(ctx, &res, models.KindForum, id, e.cascadeForum)
	}
	res.Forums = len(forums)

	posts, err := s.orphaned(ctx, models.KindPost, func(chunk []uint) []orphanQuery {
		return []orphanQuery{
			{models.KindComment, store.Filter{PostIDs: chunk, OnlyLive: true}, "post_id"},
			{models.KindVote, store.Filter{TargetIDs: chunk, IsPost: store.Bool(true), OnlyLive: true}, "target_id"},
		}
	})
	if err != nil {
		return res, err
	}
	for _, id := range posts {
		s.repair(ctx, &res, models.KindPost, id, e.cascadePost)
	}
	res.Posts = len(posts)

	comments, err := s.orphaned(ctx, models.KindComment, func(chunk []uint) []orphanQuery {
		return []orphanQuery{
			{models.KindComment, store.Filter{ParentIDs: chunk, OnlyLive: true}, "parent_id"},
			{models.KindVote, store.Filter{TargetIDs: chunk, IsPost: store.Bool(false), OnlyLive: true}, "target_id"},
		}
	})
	if err != nil {
		return res, err
	}
	for _, id := range comments {
		s.repair(ctx, &res, models.KindComment, id, func(ctx context.Context, id uint) error {
			_, err := e.cascadeComment(ctx, id)
			return err
		})
	}
	res.Comments = len(comments)

	slog.Info("孤儿清扫完成", "forums", res.Forums, "posts", res.Posts, "comments", res.Comments, "failed", res.Failed)
	return res, nil
}

// repair 单个对象失败只记录，继续处理其余对象
func (s *Sweeper) repair(ctx context.Context, res *SweepResult, kind models.Kind, id uint, cascade func(ctx context.Context, id uint) error) {
	if err := cascade(ctx, id); err != nil {
		res.Failed++
		slog.Error("孤儿清扫失败", "kind", kind, "entity_id", id, "error", err)
	}
}

// orphanQuery 统计某类子节点中未删除的数量，按 column 对应到父节点
type orphanQuery struct {
	kind   models.Kind
	filter store.Filter
	column string
}

// orphaned 分批遍历已删除的 parent，返回仍有未删除子节点的 id
func (s *Sweeper) orphaned(ctx context.Context, parent models.Kind, queries func(chunk []uint) []orphanQuery) ([]uint, error) {
	d := s.engine.deleter
	deleted, err := d.collect(ctx, parent, store.Filter{OnlyDeleted: true})
	if err != nil {
		return nil, err
	}

	var ids []uint
	for _, chunk := range chunks(deleted, d.batchSize) {
		hit := make(map[uint]bool)
		for _, q := range queries(chunk) {
			counts, err := s.engine.store.CountBy(ctx, q.kind, q.filter, q.column)
			if err != nil {
				return ids, err
			}
			for id, n := range counts {
				if n > 0 {
					hit[id] = true
				}
			}
		}
		for _, id := range chunk {
			if hit[id] {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
