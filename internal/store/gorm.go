package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zhulink-cascade/internal/models"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的实现，目标数据库为 PostgreSQL
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) model(ctx context.Context, kind models.Kind) (*gorm.DB, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return s.db.WithContext(ctx).Model(kind.Model()), nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.IDs != nil {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.ForumIDs != nil {
		q = q.Where("forum_id IN ?", f.ForumIDs)
	}
	if f.PostIDs != nil {
		q = q.Where("post_id IN ?", f.PostIDs)
	}
	if f.ParentIDs != nil {
		q = q.Where("parent_id IN ?", f.ParentIDs)
	}
	if f.TargetIDs != nil {
		q = q.Where("target_id IN ?", f.TargetIDs)
	}
	if f.IsPost != nil {
		q = q.Where("is_post = ?", *f.IsPost)
	}
	if f.OnlyLive {
		q = q.Where("is_deleted = ?", false)
	}
	if f.OnlyDeleted {
		q = q.Where("is_deleted = ?", true)
	}
	if f.DeletedBefore != nil {
		q = q.Where("deleted_at < ?", *f.DeletedBefore)
	}
	return q
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) Ref(ctx context.Context, kind models.Kind, id uint) (models.Ref, error) {
	q := s.db.WithContext(ctx)
	ref := models.Ref{Kind: kind, ID: id}

	switch kind {
	case models.KindForum:
		var f models.Forum
		if err := q.Select("id", "owner_id", "is_deleted").Take(&f, id).Error; err != nil {
			return ref, notFound(err)
		}
		ref.OwnerID, ref.IsDeleted = f.OwnerID, f.IsDeleted
	case models.KindPost:
		var p models.Post
		if err := q.Select("id", "owner_id", "forum_id", "is_deleted").Take(&p, id).Error; err != nil {
			return ref, notFound(err)
		}
		ref.OwnerID, ref.ForumID, ref.IsDeleted = p.OwnerID, p.ForumID, p.IsDeleted
	case models.KindComment:
		var c models.Comment
		if err := q.Select("id", "owner_id", "post_id", "parent_id", "is_deleted").Take(&c, id).Error; err != nil {
			return ref, notFound(err)
		}
		ref.OwnerID, ref.PostID, ref.ParentID, ref.IsDeleted = c.OwnerID, c.PostID, c.ParentID, c.IsDeleted
	case models.KindVote:
		var v models.Vote
		if err := q.Select("id", "user_id", "target_id", "is_post", "is_deleted").Take(&v, id).Error; err != nil {
			return ref, notFound(err)
		}
		ref.OwnerID, ref.TargetID, ref.IsPost, ref.IsDeleted = v.UserID, v.TargetID, v.IsPost, v.IsDeleted
	default:
		return ref, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return ref, nil
}

func (s *GormStore) OwnerOf(ctx context.Context, kind models.Kind, id uint) (uint, error) {
	q, err := s.model(ctx, kind)
	if err != nil {
		return 0, err
	}
	var owners []uint
	if err := q.Where("id = ?", id).Limit(1).Pluck(kind.OwnerColumn(), &owners).Error; err != nil {
		return 0, err
	}
	if len(owners) == 0 {
		return 0, ErrNotFound
	}
	return owners[0], nil
}

func (s *GormStore) IDs(ctx context.Context, kind models.Kind, f Filter, afterID uint, limit int) ([]uint, error) {
	q, err := s.model(ctx, kind)
	if err != nil {
		return nil, err
	}
	var ids []uint
	err = applyFilter(q, f).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) Count(ctx context.Context, kind models.Kind, f Filter) (int64, error) {
	q, err := s.model(ctx, kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = applyFilter(q, f).Count(&n).Error
	return n, err
}

func (s *GormStore) CountBy(ctx context.Context, kind models.Kind, f Filter, column string) (map[uint]int64, error) {
	if err := CheckGroupColumn(kind, column); err != nil {
		return nil, err
	}
	q, err := s.model(ctx, kind)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		GroupKey uint
		N        int64
	}
	err = applyFilter(q, f).
		Select(column + " AS group_key, COUNT(*) AS n").
		Where(column + " IS NOT NULL").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.GroupKey] = r.N
	}
	return counts, nil
}

func (s *GormStore) SoftDelete(ctx context.Context, kind models.Kind, f Filter, at time.Time) (int64, error) {
	q, err := s.model(ctx, kind)
	if err != nil {
		return 0, err
	}
	f.OnlyLive = true
	f.OnlyDeleted = false
	res := applyFilter(q, f).Updates(map[string]interface{}{
		"is_deleted": true,
		"deleted_at": at,
	})
	return res.RowsAffected, res.Error
}

func (s *GormStore) HardDelete(ctx context.Context, kind models.Kind, f Filter) (int64, error) {
	q, err := s.model(ctx, kind)
	if err != nil {
		return 0, err
	}
	res := applyFilter(q, f).Delete(kind.Model())
	return res.RowsAffected, res.Error
}

// CommentSubtreeIDs 使用递归 CTE 一次查出整棵子树，避免逐层 N+1 查询
func (s *GormStore) CommentSubtreeIDs(ctx context.Context, rootID uint, maxDepth int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Raw(`
		WITH RECURSIVE comment_tree AS (
			SELECT id, 0 AS lvl FROM comments WHERE id = ?
			UNION ALL
			SELECT c.id, ct.lvl + 1 FROM comments c
			INNER JOIN comment_tree ct ON c.parent_id = ct.id
			WHERE ct.lvl < ?
		)
		SELECT id FROM comment_tree
	`, rootID, maxDepth).Scan(&ids).Error
	return ids, err
}

func (s *GormStore) AdjustCounter(ctx context.Context, kind models.Kind, id uint, column string, delta int) error {
	if err := CheckCounterColumn(kind, column); err != nil {
		return err
	}
	q, err := s.model(ctx, kind)
	if err != nil {
		return err
	}
	return q.Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta)).
		Error
}

func (s *GormStore) SetCounter(ctx context.Context, kind models.Kind, id uint, column string, value int) error {
	if err := CheckCounterColumn(kind, column); err != nil {
		return err
	}
	q, err := s.model(ctx, kind)
	if err != nil {
		return err
	}
	return q.Where("id = ?", id).UpdateColumn(column, value).Error
}

var _ Store = (*GormStore)(nil)
