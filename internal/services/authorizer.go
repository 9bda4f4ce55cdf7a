package services

import (
	"context"
	"errors"
	"fmt"

	"zhulink-cascade/internal/models"
	"zhulink-cascade/internal/store"
)

// Decision 删除请求的权限判断结果
type Decision int

const (
	Allowed Decision = iota
	NotFound
	AlreadyDeleted
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case NotFound:
		return "not_found"
	case AlreadyDeleted:
		return "already_deleted"
	case Forbidden:
		return "forbidden"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Grant 允许删除的依据
type Grant string

const (
	GrantNone       Grant = ""
	GrantOwner      Grant = "owner"
	GrantPostOwner  Grant = "post_owner"
	GrantForumOwner Grant = "forum_owner"
)

type Verdict struct {
	Decision Decision
	Grant    Grant
	Ref      models.Ref
}

func (v Verdict) Allowed() bool {
	return v.Decision == Allowed
}

// Authorizer 沿所有权链判断用户能否删除某个对象
// 评论最多向上两跳（评论 → 帖子 → 版块），父评论的作者没有删除权
type Authorizer struct {
	resolver *OwnershipResolver
}

func NewAuthorizer(resolver *OwnershipResolver) *Authorizer {
	return &Authorizer{resolver: resolver}
}

// CanDelete 不存在或已删除均返回 false
func (a *Authorizer) CanDelete(ctx context.Context, userID uint, kind models.Kind, id uint) (bool, error) {
	v, err := a.Check(ctx, userID, kind, id)
	if err != nil {
		return false, err
	}
	return v.Allowed(), nil
}

// Check 返回详细结果，存储层故障以 error 返回而不是转换成 Decision
func (a *Authorizer) Check(ctx context.Context, userID uint, kind models.Kind, id uint) (Verdict, error) {
	if !kind.Valid() {
		return Verdict{}, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}

	ref, err := a.resolver.Resolve(ctx, kind, id)
	if errors.Is(err, store.ErrNotFound) {
		return Verdict{Decision: NotFound, Ref: ref}, nil
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("resolve %s %d: %w", kind, id, err)
	}
	if ref.IsDeleted {
		return Verdict{Decision: AlreadyDeleted, Ref: ref}, nil
	}
	if ref.OwnerID == userID {
		return Verdict{Decision: Allowed, Grant: GrantOwner, Ref: ref}, nil
	}

	var grant Grant
	switch kind {
	case models.KindPost:
		grant, err = a.forumGrant(ctx, userID, ref.ForumID)
	case models.KindComment:
		grant, err = a.postGrant(ctx, userID, ref.PostID)
	}
	if err != nil {
		return Verdict{}, err
	}
	if grant == GrantNone {
		return Verdict{Decision: Forbidden, Ref: ref}, nil
	}
	return Verdict{Decision: Allowed, Grant: grant, Ref: ref}, nil
}

// postGrant 评论所在帖子的作者，或该帖子所属版块的版主
func (a *Authorizer) postGrant(ctx context.Context, userID, postID uint) (Grant, error) {
	post, err := a.resolver.Ancestor(ctx, models.KindPost, postID)
	if errors.Is(err, store.ErrNotFound) {
		return GrantNone, nil
	}
	if err != nil {
		return GrantNone, fmt.Errorf("resolve post %d: %w", postID, err)
	}
	if post.OwnerID == userID {
		return GrantPostOwner, nil
	}
	return a.forumGrant(ctx, userID, post.ForumID)
}

func (a *Authorizer) forumGrant(ctx context.Context, userID, forumID uint) (Grant, error) {
	forum, err := a.resolver.Ancestor(ctx, models.KindForum, forumID)
	if errors.Is(err, store.ErrNotFound) {
		return GrantNone, nil
	}
	if err != nil {
		return GrantNone, fmt.Errorf("resolve forum %d: %w", forumID, err)
	}
	if forum.OwnerID == userID {
		return GrantForumOwner, nil
	}
	return GrantNone, nil
}
